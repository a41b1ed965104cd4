package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Date is a calendar day that encodes to JSON as DateLayout. The zero Date
// encodes as null.
type Date struct {
	time.Time
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		d.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	d.Time = t
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	type alias Operation
	return json.Marshal(struct {
		alias
		CreatedOn Date `json:"date_creation"`
	}{alias(o), Date{o.CreatedOn}})
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	type alias Operation
	aux := struct {
		*alias
		CreatedOn Date `json:"date_creation"`
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	o.CreatedOn = aux.CreatedOn.Time
	return nil
}

func (p Payment) MarshalJSON() ([]byte, error) {
	type alias Payment
	return json.Marshal(struct {
		alias
		PaidOn Date `json:"date_paiement"`
	}{alias(p), Date{p.PaidOn}})
}

func (p *Payment) UnmarshalJSON(data []byte) error {
	type alias Payment
	aux := struct {
		*alias
		PaidOn Date `json:"date_paiement"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.PaidOn = aux.PaidOn.Time
	return nil
}
