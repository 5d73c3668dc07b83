package coerce_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wehubfusion/Daedalus/pkg/coerce"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

func prop(t metamodel.Type, enum ...string) *metamodel.Property {
	return &metamodel.Property{Name: "p", Type: t, Enum: enum}
}

func TestCoerceScalars(t *testing.T) {
	c := coerce.NewCoercer(coerce.Format{}, nil)

	tests := []struct {
		name string
		raw  rawdata.Value
		prop *metamodel.Property
		want interface{}
	}{
		{"string kept verbatim", rawdata.Scalar(" a b "), prop(metamodel.TypeString), " a b "},
		{"empty string", rawdata.Scalar(""), prop(metamodel.TypeString), ""},
		{"integer", rawdata.Scalar(" 42 "), prop(metamodel.TypeInteger), int32(42)},
		{"integer overflow", rawdata.Scalar("3000000000"), prop(metamodel.TypeInteger), nil},
		{"integer garbage", rawdata.Scalar("4x"), prop(metamodel.TypeInteger), nil},
		{"long", rawdata.Scalar("3000000000"), prop(metamodel.TypeLong), int64(3000000000)},
		{"double", rawdata.Scalar("2.5"), prop(metamodel.TypeDouble), 2.5},
		{"decimal", rawdata.Scalar("10.10"), prop(metamodel.TypeDecimal), decimal.RequireFromString("10.10")},
		{"empty number", rawdata.Scalar("  "), prop(metamodel.TypeLong), nil},
		{"boolean true", rawdata.Scalar("TRUE"), prop(metamodel.TypeBoolean), true},
		{"boolean false", rawdata.Scalar("false"), prop(metamodel.TypeBoolean), false},
		{"boolean garbage", rawdata.Scalar("maybe"), prop(metamodel.TypeBoolean), nil},
		{"enum any case", rawdata.Scalar("shipped"), prop(metamodel.TypeEnum, "NEW", "SHIPPED"), "SHIPPED"},
		{"enum unknown", rawdata.Scalar("LOST"), prop(metamodel.TypeEnum, "NEW", "SHIPPED"), nil},
		{"default date layout", rawdata.Scalar("2024-03-01T10:00:00Z"), prop(metamodel.TypeDate), time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"default local date layout", rawdata.Scalar("2024-03-01"), prop(metamodel.TypeLocalDate), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"nil raw", nil, prop(metamodel.TypeString), nil},
		{"object raw", rawdata.NewObject().Set("a", rawdata.Scalar("1")), prop(metamodel.TypeString), nil},
		{"reference property", rawdata.Scalar("x"), &metamodel.Property{Name: "r", Type: metamodel.TypeReference, Target: "T"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Coerce(tt.raw, tt.prop)
			if d, ok := tt.want.(decimal.Decimal); ok {
				require.IsType(t, decimal.Decimal{}, got)
				assert.True(t, d.Equal(got.(decimal.Decimal)))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceCustomBooleanLiterals(t *testing.T) {
	c := coerce.NewCoercer(coerce.Format{BooleanTrue: "Y", BooleanFalse: "N"}, nil)
	boolean := prop(metamodel.TypeBoolean)

	assert.Equal(t, true, c.Coerce(rawdata.Scalar("y"), boolean))
	assert.Equal(t, false, c.Coerce(rawdata.Scalar("n"), boolean))
	assert.Equal(t, false, c.Coerce(rawdata.Scalar("N"), boolean))
	assert.Nil(t, c.Coerce(rawdata.Scalar("maybe"), boolean))
	assert.Nil(t, c.Coerce(rawdata.Scalar("true"), boolean))
}

func TestCoerceDatePatterns(t *testing.T) {
	tests := []struct {
		pattern string
		raw     string
		typ     metamodel.Type
		want    time.Time
	}{
		{"dd/MM/yyyy", "05/02/2023", metamodel.TypeLocalDate, time.Date(2023, 2, 5, 0, 0, 0, 0, time.UTC)},
		{"yyyy-MM-dd HH:mm", "2023-02-05 17:45", metamodel.TypeDate, time.Date(2023, 2, 5, 17, 45, 0, 0, time.UTC)},
		{"dd MMM yyyy", "05 Feb 2023", metamodel.TypeLocalDate, time.Date(2023, 2, 5, 0, 0, 0, 0, time.UTC)},
		{"yyyy-MM-dd'T'HH:mm:ss", "2023-02-05T01:02:03", metamodel.TypeDate, time.Date(2023, 2, 5, 1, 2, 3, 0, time.UTC)},
		{"DD_MM_YYYY_SLASH", "05/02/2023", metamodel.TypeLocalDate, time.Date(2023, 2, 5, 0, 0, 0, 0, time.UTC)},
		{"DateTime", "2023-02-05 01:02:03", metamodel.TypeDate, time.Date(2023, 2, 5, 1, 2, 3, 0, time.UTC)},
		{"02.01.2006", "05.02.2023", metamodel.TypeLocalDate, time.Date(2023, 2, 5, 0, 0, 0, 0, time.UTC)},
		{"yyyy-MM-dd", "2023-02-05", metamodel.TypeDate, time.Date(2023, 2, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			c := coerce.NewCoercer(coerce.Format{DatePattern: tt.pattern}, nil)
			got := c.Coerce(rawdata.Scalar(tt.raw), prop(tt.typ))
			require.IsType(t, time.Time{}, got)
			assert.True(t, tt.want.Equal(got.(time.Time)), "got %v", got)
		})
	}
}

func TestResolveLayout(t *testing.T) {
	assert.Equal(t, "fallback", coerce.ResolveLayout("  ", "fallback"))
	assert.Equal(t, time.RFC3339, coerce.ResolveLayout("RFC3339", ""))
	assert.Equal(t, "02/01/2006 15:04:05.000", coerce.ResolveLayout("dd/MM/yyyy HH:mm:ss.SSS", ""))
	assert.Equal(t, "03:04 PM", coerce.ResolveLayout("hh:mm a", ""))
	assert.Equal(t, "2006-01-02", coerce.ResolveLayout("2006-01-02", ""))
	assert.Equal(t, "at 15", coerce.ResolveLayout("'at' HH", ""))
}

func TestCoerceFailureLogsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := coerce.NewCoercer(coerce.Format{DatePattern: "dd/MM/yyyy"}, logging.NewZapLogger(zap.New(core)))

	got := c.Coerce(rawdata.Scalar("2023-02-05"), &metamodel.Property{Name: "date", Type: metamodel.TypeLocalDate})
	assert.Nil(t, got)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "date", warnings[0].ContextMap()["property"])
	assert.Equal(t, "2023-02-05", warnings[0].ContextMap()["value"])
}

func TestConvert(t *testing.T) {
	c := coerce.NewCoercer(coerce.Format{}, nil)

	tests := []struct {
		name    string
		value   interface{}
		prop    *metamodel.Property
		want    interface{}
		wantErr bool
	}{
		{"nil", nil, prop(metamodel.TypeInteger), nil, false},
		{"js number to integer", float64(7), prop(metamodel.TypeInteger), int32(7), false},
		{"fractional to integer", 7.5, prop(metamodel.TypeInteger), nil, true},
		{"int to long", 7, prop(metamodel.TypeLong), int64(7), false},
		{"int to double", int64(2), prop(metamodel.TypeDouble), float64(2), false},
		{"string goes through coercion", "12", prop(metamodel.TypeLong), int64(12), false},
		{"scalar goes through coercion", rawdata.Scalar("yes"), prop(metamodel.TypeBoolean), nil, false},
		{"number to string", 12, prop(metamodel.TypeString), "12", false},
		{"bool", true, prop(metamodel.TypeBoolean), true, false},
		{"bool mismatch", 1, prop(metamodel.TypeBoolean), nil, true},
		{"time to local date", time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), prop(metamodel.TypeLocalDate), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Convert(tt.value, tt.prop)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, daedaluserrors.KindDataBinding, daedaluserrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := c.Convert(2.25, prop(metamodel.TypeDecimal))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.25").Equal(got.(decimal.Decimal)))
}
