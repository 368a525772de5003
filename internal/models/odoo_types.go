package models

import (
	"encoding/json"
	"errors"
)

// Model represents an Odoo model name.
type Model string

// Odoo models this client touches.
const (
	ModelResUsers          Model = "res.users"
	ModelProductProduct    Model = "product.product"
	ModelStockLocation     Model = "stock.location"
	ModelStockQuant        Model = "stock.quant"
	ModelInventoryAdjName  Model = "stock.inventory.adjustment.name"
	ModelInventoryConflict Model = "stock.inventory.conflict"
)

// OdooString is a string that tolerates Odoo's dynamic typing.
// Odoo returns `false` (boolean) for empty text and binary fields
// instead of an empty string.
type OdooString string

// UnmarshalJSON handles both string and bool(false) payloads.
func (os *OdooString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*os = OdooString(s)
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if !b {
			*os = ""
			return nil
		}
		*os = "true"
		return nil
	}

	return errors.New("OdooString: cannot unmarshal value into string")
}

// String returns the native string value.
func (os OdooString) String() string { return string(os) }

// Many2One decodes Odoo's relational field encoding: a `[id, display_name]`
// pair when set, `false` when unset.
type Many2One struct {
	ID   int64
	Name string
}

// UnmarshalJSON handles the tuple and the false sentinel.
func (m *Many2One) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			return errors.New("Many2One: unexpected boolean true")
		}
		*m = Many2One{}
		return nil
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.New("Many2One: expected [id, name] pair or false")
	}
	if len(pair) < 2 {
		*m = Many2One{}
		return nil
	}
	if err := json.Unmarshal(pair[0], &m.ID); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &m.Name)
}

// IsZero reports whether the field was unset on the Odoo side.
func (m Many2One) IsZero() bool { return m.ID == 0 && m.Name == "" }

// DomainCondition is a single element of an Odoo domain filter: either a
// [field, operator, value] triple or a bare logical operator like "|".
type DomainCondition []interface{}

// Domain is a collection of conditions forming an Odoo search filter.
type Domain []DomainCondition

// Cond builds a standard [field, operator, value] condition.
func Cond(field, operator string, value interface{}) DomainCondition {
	return DomainCondition{field, operator, value}
}

// ToRPC converts the domain into the []interface{} shape Odoo's RPC layer
// expects, flattening single-element conditions into bare operator strings.
func (d Domain) ToRPC() []interface{} {
	rpc := make([]interface{}, 0, len(d))
	for _, cond := range d {
		if len(cond) == 1 {
			if op, ok := cond[0].(string); ok {
				rpc = append(rpc, op)
				continue
			}
		}
		rpc = append(rpc, []interface{}(cond))
	}
	return rpc
}
