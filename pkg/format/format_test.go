package format_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/format"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

func scalar(t *testing.T, obj *rawdata.Object, name string) string {
	t.Helper()
	s, ok := rawdata.AsScalar(obj.Get(name))
	require.True(t, ok, "field %q is not a scalar: %v", name, obj.Get(name))
	return s
}

func TestParseFormat(t *testing.T) {
	f, err := format.ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, format.CSV, f)

	_, err = format.ParseFormat("parquet")
	assert.Error(t, err)
}

func TestExtractCSV(t *testing.T) {
	input := "Order Num,Customer,Amount\n1,Alice,10.5\n2,,7\n3,Carol,1,extra\n"

	data, err := format.Extract(strings.NewReader(input), format.Options{Format: format.CSV})
	require.NoError(t, err)

	assert.Equal(t, []string{"Order Num", "Customer", "Amount"}, data.FieldNames)
	require.Len(t, data.Items, 3)
	assert.Equal(t, 1, data.Items[0].Index)
	assert.Equal(t, 3, data.Items[2].Index)
	assert.Equal(t, "Alice", scalar(t, data.Items[0].Fields(), "Customer"))
	assert.Equal(t, "", scalar(t, data.Items[1].Fields(), "Customer"))
	assert.Equal(t, []string{"Order Num", "Customer", "Amount"}, data.Items[2].Names())
}

func TestExtractCSVDelimiterAndEmpty(t *testing.T) {
	data, err := format.Extract(strings.NewReader("a;b\nx;y\n"), format.Options{Format: format.CSV, Delimiter: ';'})
	require.NoError(t, err)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "y", scalar(t, data.Items[0].Fields(), "b"))

	empty, err := format.Extract(strings.NewReader(""), format.Options{Format: format.CSV})
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
}

func TestExtractCSVCharset(t *testing.T) {
	encoded, err := charmap.ISO8859_1.NewEncoder().String("name\nJosé\n")
	require.NoError(t, err)

	data, err := format.Extract(bytes.NewReader([]byte(encoded)), format.Options{Format: format.CSV, Charset: "ISO-8859-1"})
	require.NoError(t, err)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "José", scalar(t, data.Items[0].Fields(), "name"))

	_, err = format.Extract(strings.NewReader("x"), format.Options{Format: format.CSV, Charset: "no-such-charset"})
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	input := `[
		{"number": 7, "paid": true, "customer": {"name": "Alice", "email": null},
		 "lines": [{"sku": "A", "qty": "2"}, {"sku": "B", "qty": "1"}]},
		{"number": 8, "note": "rush"}
	]`

	data, err := format.Extract(strings.NewReader(input), format.Options{Format: format.JSON})
	require.NoError(t, err)

	assert.Equal(t, []string{"number", "paid", "customer", "lines", "note"}, data.FieldNames)
	require.Len(t, data.Items, 2)

	first := data.Items[0]
	assert.Equal(t, 1, first.Index)
	assert.Equal(t, "7", scalar(t, first.Fields(), "number"))
	assert.Equal(t, "true", scalar(t, first.Fields(), "paid"))

	customer, ok := first.Get("customer").(*rawdata.Object)
	require.True(t, ok)
	assert.Equal(t, "Alice", scalar(t, customer, "name"))
	assert.True(t, customer.Has("email"))
	assert.Nil(t, customer.Get("email"))

	lines, ok := first.Get("lines").(rawdata.List)
	require.True(t, ok)
	require.Len(t, lines, 2)
	assert.Equal(t, "B", scalar(t, lines[1], "sku"))

	assert.Equal(t, 2, data.Items[1].Index)
}

func TestExtractJSONSingleObject(t *testing.T) {
	data, err := format.Extract(strings.NewReader(`{"b": "1", "a": "2"}`), format.Options{Format: format.JSON})
	require.NoError(t, err)
	require.Len(t, data.Items, 1)
	assert.Equal(t, []string{"b", "a"}, data.FieldNames)
	assert.Equal(t, []string{"b", "a"}, data.Items[0].Names())
}

func TestExtractJSONMalformed(t *testing.T) {
	_, err := format.Extract(strings.NewReader(`[{"a": }]`), format.Options{Format: format.JSON})
	require.Error(t, err)
	assert.Equal(t, daedaluserrors.KindGeneral, daedaluserrors.KindOf(err))
}

func TestExtractXMLItems(t *testing.T) {
	input := `<?xml version="1.0"?>
<orders>
  <order>
    <number> 7 </number>
    <customer><name>Alice</name><email>a@example.com</email></customer>
    <lines>
      <line><sku>A</sku><qty>2</qty></line>
      <line><sku>B</sku><qty>1</qty></line>
    </lines>
    <tag><v>x</v></tag>
    <tag><v>y</v></tag>
  </order>
  <order>
    <number>8</number>
  </order>
</orders>`

	data, err := format.Extract(strings.NewReader(input), format.Options{Format: format.XML})
	require.NoError(t, err)
	require.Len(t, data.Items, 2)
	assert.Equal(t, []string{"number", "customer", "lines", "tag"}, data.FieldNames)

	first := data.Items[0]
	assert.Equal(t, "7", scalar(t, first.Fields(), "number"))

	customer, ok := first.Get("customer").(*rawdata.Object)
	require.True(t, ok)
	assert.Equal(t, "a@example.com", scalar(t, customer, "email"))

	lines, ok := first.Get("lines").(rawdata.List)
	require.True(t, ok)
	require.Len(t, lines, 2)
	assert.Equal(t, "2", scalar(t, lines[0], "qty"))

	tags, ok := first.Get("tag").(rawdata.List)
	require.True(t, ok)
	require.Len(t, tags, 2)
	assert.Equal(t, "y", scalar(t, tags[1], "v"))

	assert.Equal(t, 2, data.Items[1].Index)
}

func TestExtractXMLSingleItemRoot(t *testing.T) {
	input := `<order><number>7</number><note/><customer><name>Bob</name></customer></order>`

	data, err := format.Extract(strings.NewReader(input), format.Options{Format: format.XML})
	require.NoError(t, err)
	require.Len(t, data.Items, 1)
	assert.Equal(t, []string{"number", "note", "customer"}, data.FieldNames)
	assert.Equal(t, "", scalar(t, data.Items[0].Fields(), "note"))
}

func TestExtractUnsupported(t *testing.T) {
	_, err := format.Extract(strings.NewReader(""), format.Options{Format: format.XLSX})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx")
}
