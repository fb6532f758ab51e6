// Package diff computes the minimal field-level update that brings a
// target record in line with its source, and creation payloads for
// sources without a target. The null policy throughout: a source field
// that is absent (nil or empty) means "don't touch", never "clear".
package diff

import (
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
)

// StatusMap translates source business statuses into target statuses.
// An empty map is the identity mapping. A source status without an
// entry leaves the status field absent rather than failing the item.
type StatusMap map[string]string

// Map resolves a source status. ok is false for unmapped values.
func (m StatusMap) Map(status string) (string, bool) {
	if status == "" {
		return "", false
	}
	if len(m) == 0 {
		return status, true
	}
	v, ok := m[status]
	return v, ok
}

// Update computes a sparse update payload for a matched pair. A field
// is included only when the source value is set and differs from the
// target (strict inequality, no normalization). When the target's
// contents are unknown (matched through the relation table alone,
// target == nil), every set source field is included, since staleness
// cannot be ruled out. Returns nil when nothing needs updating.
func Update(source, target *domain.Entity, targetID string, statuses StatusMap) *domain.UpdatePayload {
	u := &domain.UpdatePayload{
		Kind:     source.Kind,
		SourceID: source.ID,
		TargetID: targetID,
	}

	if mapped, ok := statuses.Map(source.Status); ok {
		if target == nil || mapped != target.Status {
			u.Status = &mapped
		}
	}

	if source.Description != "" && (target == nil || source.Description != target.Description) {
		d := source.Description
		u.Description = &d
	}

	if source.Moment != nil && (target == nil || target.Moment == nil || !source.Moment.Equal(*target.Moment)) {
		m := *source.Moment
		u.Moment = &m
	}

	if source.ShipmentDate != nil && (target == nil || target.ShipmentDate == nil || !source.ShipmentDate.Equal(*target.ShipmentDate)) {
		s := *source.ShipmentDate
		u.ShipmentDate = &s
	}

	if source.Price != nil && (target == nil || target.Price == nil || !source.Price.Equal(*target.Price)) {
		p := *source.Price
		u.Price = &p
	}

	if source.Quantity != nil && (target == nil || target.Quantity == nil || !source.Quantity.Equal(*target.Quantity)) {
		q := *source.Quantity
		u.Quantity = &q
	}

	for id, v := range source.Attributes {
		if v == "" {
			continue
		}
		if target == nil || target.Attribute(id) != v {
			if u.Attributes == nil {
				u.Attributes = make(map[string]string)
			}
			u.Attributes[id] = v
		}
	}

	if u.IsEmpty() {
		return nil
	}
	return u
}

// Create builds a creation payload copying every set source field,
// with the status mapping applied.
func Create(source *domain.Entity, statuses StatusMap) *domain.CreatePayload {
	c := &domain.CreatePayload{
		Kind:         source.Kind,
		SourceID:     source.ID,
		Article:      source.Article,
		ExternalCode: source.ExternalCode,
		Description:  source.Description,
	}

	if mapped, ok := statuses.Map(source.Status); ok {
		c.Status = mapped
	}

	if source.Moment != nil {
		m := *source.Moment
		c.Moment = &m
	}
	if source.ShipmentDate != nil {
		s := *source.ShipmentDate
		c.ShipmentDate = &s
	}
	if source.Price != nil {
		p := *source.Price
		c.Price = &p
	}
	if source.Quantity != nil {
		q := *source.Quantity
		c.Quantity = &q
	}
	if len(source.Attributes) > 0 {
		c.Attributes = make(map[string]string, len(source.Attributes))
		for id, v := range source.Attributes {
			if v != "" {
				c.Attributes[id] = v
			}
		}
	}
	return c
}
