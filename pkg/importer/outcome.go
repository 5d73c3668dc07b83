package importer

import (
	"github.com/wehubfusion/Daedalus/pkg/entity"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

// Outcome is the result of one import run.
type Outcome struct {
	ConfigurationCode string    `json:"configurationCode"`
	Success           bool      `json:"success"`
	Processed         int       `json:"processedCount"`
	ImportedIDs       []string  `json:"importedIds"`
	Failures          []Failure `json:"failures,omitempty"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
}

// Failure describes an entity or raw item that was not imported.
type Failure struct {
	ItemIndex int                    `json:"itemIndex,omitempty"`
	Item      *rawdata.Item          `json:"item,omitempty"`
	Entity    map[string]interface{} `json:"entity,omitempty"`
	Kind      daedaluserrors.Kind    `json:"kind"`
	Message   string                 `json:"message"`
}

func newOutcome(code string) *Outcome {
	return &Outcome{ConfigurationCode: code, Success: true, ImportedIDs: []string{}}
}

// Failed returns an unsuccessful outcome carrying message.
func Failed(code, message string) *Outcome {
	o := newOutcome(code)
	o.Success = false
	o.ErrorMessage = message
	return o
}

func (o *Outcome) addImportedID(id string) {
	for _, existing := range o.ImportedIDs {
		if existing == id {
			return
		}
	}
	o.ImportedIDs = append(o.ImportedIDs, id)
}

func (o *Outcome) addFailure(e *entity.Entity, item *rawdata.Item, kind daedaluserrors.Kind, message string) {
	f := Failure{Item: item, Kind: kind, Message: message}
	if item != nil {
		f.ItemIndex = item.Index
	}
	if e != nil {
		f.Entity = e.Snapshot()
	}
	o.Failures = append(o.Failures, f)
}

// reset discards the run: nothing was stored.
func (o *Outcome) reset(message string) {
	o.Success = false
	o.Processed = 0
	o.ImportedIDs = []string{}
	o.ErrorMessage = message
}

// FailuresOf returns the failures of the given kind.
func (o *Outcome) FailuresOf(kind daedaluserrors.Kind) []Failure {
	var out []Failure
	for _, f := range o.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
