package format

import (
	"encoding/csv"
	"io"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

// extractCSV treats the first record as the header. Cells beyond the header are dropped.
func extractCSV(r io.Reader, delimiter rune) (*rawdata.Data, error) {
	reader := csv.NewReader(r)
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	reader.FieldsPerRecord = -1

	data := &rawdata.Data{}
	header, err := reader.Read()
	if err == io.EOF {
		return data, nil
	}
	if err != nil {
		return nil, daedaluserrors.NewError(string(daedaluserrors.KindGeneral), "unable to read lines from CSV", err)
	}
	for _, name := range header {
		data.AddFieldName(name)
	}

	for index := 1; ; index++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, daedaluserrors.NewError(string(daedaluserrors.KindGeneral), "unable to read lines from CSV", err)
		}

		item := rawdata.NewItem(index)
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			item.Set(header[i], rawdata.Scalar(cell))
		}
		data.Items = append(data.Items, item)
	}
	return data, nil
}
