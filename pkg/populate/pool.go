package populate

import (
	"github.com/wehubfusion/Daedalus/pkg/entity"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/persistence"
)

// Pool holds the references created so far, per reference mapping. A pool
// threaded through several populate calls lets later rows reuse sub-objects
// an earlier row created instead of creating duplicates.
type Pool struct {
	byMapping map[mapping.PropertyMapping][]*entity.Entity
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{byMapping: make(map[mapping.PropertyMapping][]*entity.Entity)}
}

// Find returns the first pooled entity of m matching every key value.
func (p *Pool) Find(m mapping.PropertyMapping, keys map[string]interface{}) *entity.Entity {
	if p == nil || len(keys) == 0 {
		return nil
	}
	return persistence.FindAmong(p.byMapping[m], keys)
}

// Add records e as created through m.
func (p *Pool) Add(m mapping.PropertyMapping, e *entity.Entity) {
	if p == nil || entity.Contains(p.byMapping[m], e) {
		return
	}
	p.byMapping[m] = append(p.byMapping[m], e)
}

// Len returns the number of pooled entities.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, list := range p.byMapping {
		n += len(list)
	}
	return n
}
