package httpadapter

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
)

// Generic field names recognized by the converter. Platform-specific
// shapes must be pre-mapped into this vocabulary by their own adapter.
const (
	fieldID           = "id"
	fieldArticle      = "article"
	fieldExternalCode = "externalCode"
	fieldStatus       = "status"
	fieldDescription  = "description"
	fieldMoment       = "moment"
	fieldShipmentDate = "shipmentDate"
	fieldPrice        = "price"
	fieldQuantity     = "quantity"
	fieldAttributes   = "attributes"
	fieldErrors       = "errors"
)

// ConvertEntity parses one raw item into an Entity. The raw struct is
// retained on the entity for diagnostics.
func (a *Adapter) ConvertEntity(item *structpb.Struct) (*domain.Entity, error) {
	if item == nil {
		return nil, fmt.Errorf("httpadapter: nil raw item")
	}
	fields := item.GetFields()

	e := &domain.Entity{
		Kind:         a.cfg.Kind,
		ID:           stringField(fields, fieldID),
		Article:      stringField(fields, fieldArticle),
		ExternalCode: stringField(fields, fieldExternalCode),
		Status:       stringField(fields, fieldStatus),
		Description:  stringField(fields, fieldDescription),
		Original:     item,
	}
	if e.ID == "" {
		return nil, fmt.Errorf("httpadapter: raw item has no id")
	}

	var err error
	if e.Moment, err = timeField(fields, fieldMoment); err != nil {
		return nil, err
	}
	if e.ShipmentDate, err = timeField(fields, fieldShipmentDate); err != nil {
		return nil, err
	}
	if e.Price, err = decimalField(fields, fieldPrice); err != nil {
		return nil, err
	}
	if e.Quantity, err = decimalField(fields, fieldQuantity); err != nil {
		return nil, err
	}

	if attrs := fields[fieldAttributes]; attrs != nil {
		if s := attrs.GetStructValue(); s != nil {
			e.Attributes = make(map[string]string, len(s.GetFields()))
			for id, v := range s.GetFields() {
				e.Attributes[id] = v.GetStringValue()
			}
		}
	}
	return e, nil
}

// ConvertError returns the structured API error carried by a write
// response item, or nil for a success item.
func (a *Adapter) ConvertError(item *structpb.Struct) *domain.ErrorRecord {
	if item == nil {
		return nil
	}
	errsVal := item.GetFields()[fieldErrors]
	if errsVal == nil {
		return nil
	}
	list := errsVal.GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil
	}

	rec := &domain.ErrorRecord{Kind: domain.KindAPI}
	for _, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			continue
		}
		ef := s.GetFields()
		apiErr := domain.APIError{
			Code:      stringField(ef, "code"),
			Message:   stringField(ef, "error"),
			Parameter: stringField(ef, "parameter"),
		}
		rec.APIErrors = append(rec.APIErrors, apiErr)
		if rec.Message == "" {
			rec.Message = apiErr.Message
		}
	}
	if len(rec.APIErrors) == 0 {
		return nil
	}
	return rec
}

func stringField(fields map[string]*structpb.Value, name string) string {
	v := fields[name]
	if v == nil {
		return ""
	}
	return v.GetStringValue()
}

func timeField(fields map[string]*structpb.Value, name string) (*time.Time, error) {
	s := stringField(fields, name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("httpadapter: field %s: %w", name, err)
	}
	utc := t.UTC()
	return &utc, nil
}

func decimalField(fields map[string]*structpb.Value, name string) (*decimal.Decimal, error) {
	v := fields[name]
	if v == nil {
		return nil, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		d := decimal.NewFromFloat(k.NumberValue)
		return &d, nil
	case *structpb.Value_StringValue:
		if k.StringValue == "" {
			return nil, nil
		}
		d, err := decimal.NewFromString(k.StringValue)
		if err != nil {
			return nil, fmt.Errorf("httpadapter: field %s: %w", name, err)
		}
		return &d, nil
	case *structpb.Value_NullValue:
		return nil, nil
	default:
		return nil, fmt.Errorf("httpadapter: field %s has unsupported type", name)
	}
}

// createBody serializes a creation payload into the generic wire shape.
func createBody(p *domain.CreatePayload) map[string]interface{} {
	body := map[string]interface{}{}
	if p.Article != "" {
		body[fieldArticle] = p.Article
	}
	if p.ExternalCode != "" {
		body[fieldExternalCode] = p.ExternalCode
	}
	if p.Status != "" {
		body[fieldStatus] = p.Status
	}
	if p.Description != "" {
		body[fieldDescription] = p.Description
	}
	putTime(body, fieldMoment, p.Moment)
	putTime(body, fieldShipmentDate, p.ShipmentDate)
	putDecimal(body, fieldPrice, p.Price)
	putDecimal(body, fieldQuantity, p.Quantity)
	if len(p.Attributes) > 0 {
		body[fieldAttributes] = p.Attributes
	}
	return body
}

// updateBody serializes only the populated fields of a sparse update.
func updateBody(p *domain.UpdatePayload) map[string]interface{} {
	body := map[string]interface{}{fieldID: p.TargetID}
	if p.Status != nil {
		body[fieldStatus] = *p.Status
	}
	if p.Description != nil {
		body[fieldDescription] = *p.Description
	}
	putTime(body, fieldMoment, p.Moment)
	putTime(body, fieldShipmentDate, p.ShipmentDate)
	putDecimal(body, fieldPrice, p.Price)
	putDecimal(body, fieldQuantity, p.Quantity)
	if len(p.Attributes) > 0 {
		body[fieldAttributes] = p.Attributes
	}
	return body
}

func putTime(body map[string]interface{}, name string, t *time.Time) {
	if t != nil {
		body[name] = t.UTC().Format(time.RFC3339)
	}
}

func putDecimal(body map[string]interface{}, name string, d *decimal.Decimal) {
	if d != nil {
		body[name] = d.String()
	}
}
