package ecommerce

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// graphqlRequest is the POST body of every call. The web endpoint expects the
// operation name alongside the document.
type graphqlRequest struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
	Ext     struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

func joinErrors(errs []graphqlError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Message
		if e.Ext.Code != "" {
			msg = e.Ext.Code + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

// statusValue accepts both "STATUS_OPENED" and {"id": "STATUS_OPENED"}.
type statusValue string

func (s *statusValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = statusValue(str)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*s = statusValue(obj.ID)
	return nil
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type edge[T any] struct {
	Node   T      `json:"node"`
	Cursor string `json:"cursor"`
}

type connection[T any] struct {
	Edges    []edge[T] `json:"edges"`
	PageInfo pageInfo  `json:"pageInfo"`
}

type idRef struct {
	ID string `json:"id"`
}

// updatedProducts is the payload of the batch price mutation
type updatedProducts struct {
	Products []idRef `json:"products"`
}

type productNode struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Status statusValue     `json:"status"`
}

type orderProductNode struct {
	ProductID string `json:"productId"`
	Product   *idRef `json:"product"`
}

type orderNode struct {
	ID            string             `json:"id"`
	Status        statusValue        `json:"status"`
	OpenedAt      *time.Time         `json:"openedAt"`
	CreatedAt     *time.Time         `json:"createdAt"`
	OrderProducts []orderProductNode `json:"orderProducts"`
}

// editProductNode carries everything the web mutation needs to resubmit a listing.
type editProductNode struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	SnapshotID  string          `json:"snapshotId"`
	Description string          `json:"description"`
	Shop        *idRef          `json:"shop"`
	Status      statusValue     `json:"status"`
	Variants    []struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Quantity        int    `json:"quantity"`
		StockSnapshotID string `json:"stockSnapshotId"`
		SkuCode         string `json:"skuCode"`
		JanCode         string `json:"janCode"`
		OptionTypes     []struct {
			ID      string  `json:"id"`
			Options []idRef `json:"options"`
		} `json:"optionTypes"`
	} `json:"variants"`
	ShippingMethodType   *idRef  `json:"shippingMethodType"`
	ShippingPayerType    *idRef  `json:"shippingPayerType"`
	ShippingDurationType *idRef  `json:"shippingDurationType"`
	ShippingFromState    *idRef  `json:"shippingFromState"`
	Condition            *idRef  `json:"condition"`
	Thumbnails           []idRef `json:"thumbnails"`
	Categories           []struct {
		Category []idRef `json:"category"`
	} `json:"categories"`
	Brands                       []idRef `json:"brands"`
	CountryRestrictionTemplateID string  `json:"countryRestrictionTemplateId"`
}

func refID(r *idRef, fallback string) string {
	if r == nil || r.ID == "" {
		return fallback
	}
	return r.ID
}

// updateInput builds the UpdateProductInput of the web mutation with the new price.
func (p *editProductNode) updateInput(shopID string, price int64) map[string]any {
	assetIDs := make([]string, 0, len(p.Thumbnails))
	for _, t := range p.Thumbnails {
		assetIDs = append(assetIDs, t.ID)
	}
	// only the deepest category of the last path is submitted
	categoryIDs := []string{}
	if n := len(p.Categories); n > 0 {
		if path := p.Categories[n-1].Category; len(path) > 0 {
			categoryIDs = append(categoryIDs, path[len(path)-1].ID)
		}
	}
	brandIDs := make([]string, 0, len(p.Brands))
	for _, b := range p.Brands {
		brandIDs = append(brandIDs, b.ID)
	}

	variants := make([]map[string]any, 0, len(p.Variants))
	for _, v := range p.Variants {
		qty := v.Quantity
		if qty == 0 {
			qty = 1
		}
		var optionID, optionTypeID string
		if len(v.OptionTypes) > 0 {
			optionTypeID = v.OptionTypes[0].ID
			if len(v.OptionTypes[0].Options) > 0 {
				optionID = v.OptionTypes[0].Options[0].ID
			}
		}
		variants = append(variants, map[string]any{
			"id":              v.ID,
			"name":            v.Name,
			"quantity":        qty,
			"optionId":        optionID,
			"optionTypeId":    optionTypeID,
			"stockSnapshotId": v.StockSnapshotID,
			"janCode":         v.JanCode,
			"skuCode":         v.SkuCode,
			"attributes":      []any{},
		})
	}

	status := string(p.Status)
	if status == "" {
		status = "STATUS_UNOPENED"
	}
	if p.Shop != nil && p.Shop.ID != "" {
		shopID = p.Shop.ID
	}

	return map[string]any{
		"id":                           p.ID,
		"name":                         p.Name,
		"shopId":                       shopID,
		"status":                       status,
		"productSnapshotId":            p.SnapshotID,
		"description":                  p.Description,
		"price":                        price,
		"assetIds":                     assetIDs,
		"categoryIds":                  categoryIDs,
		"brandIds":                     brandIDs,
		"condition":                    refID(p.Condition, "CONDITION_BRAND_NEW"),
		"shippingFromStateId":          refID(p.ShippingFromState, "jp27"),
		"shippingDurationType":         refID(p.ShippingDurationType, "DURATION_TYPE_EIGHT_TO_FOURTEEN_DAYS"),
		"shippingMethodType":           refID(p.ShippingMethodType, "METHOD_MERCARI_SHIPPING_YAMATO"),
		"shippingPayerType":            refID(p.ShippingPayerType, "PAYER_TYPE_SELLER"),
		"countryRestrictionTemplateId": p.CountryRestrictionTemplateID,
		"variants":                     variants,
	}
}

// toPrice converts a decoded price to the smallest currency unit
func toPrice(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
