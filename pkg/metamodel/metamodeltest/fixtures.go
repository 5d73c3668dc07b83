// Package metamodeltest provides schema fixtures shared by package tests.
package metamodeltest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
)

// OrderSchemaYAML is a small order-management schema covering every property type.
const OrderSchemaYAML = `
entities:
  - name: Customer
    properties:
      - {name: name, type: STRING, required: true}
      - {name: email, type: STRING, validation: {format: email}}
      - {name: address, type: REFERENCE, target: Address, embedded: true}
  - name: Address
    properties:
      - {name: city, type: STRING}
      - {name: zip, type: STRING}
  - name: Product
    properties:
      - {name: sku, type: STRING, required: true}
      - {name: name, type: STRING}
  - name: Order
    properties:
      - {name: number, type: INTEGER, required: true}
      - {name: date, type: LOCAL_DATE}
      - {name: amount, type: DECIMAL, validation: {minimum: 0}}
      - {name: paid, type: BOOLEAN}
      - {name: status, type: ENUM, enum: [NEW, SHIPPED, CANCELLED]}
      - {name: note, type: STRING}
      - {name: customer, type: REFERENCE, target: Customer}
      - {name: lines, type: REFERENCE, target: OrderLine, cardinality: MANY, inverse: order}
  - name: OrderLine
    properties:
      - {name: lineNo, type: INTEGER}
      - {name: quantity, type: INTEGER}
      - {name: price, type: DECIMAL}
      - {name: product, type: REFERENCE, target: Product}
      - {name: order, type: REFERENCE, target: Order}
  - name: Reading
    properties:
      - {name: sequence, type: LONG}
      - {name: value, type: DOUBLE}
      - {name: takenAt, type: DATE}
`

// OrderSchema parses OrderSchemaYAML.
func OrderSchema(t testing.TB) *metamodel.Schema {
	t.Helper()
	schema, err := metamodel.NewParser().Parse([]byte(OrderSchemaYAML))
	require.NoError(t, err)
	return schema
}
