package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
)

func TestLineItemsScanAcceptsStringAndBytes(t *testing.T) {
	productID := uuid.New()
	items := LineItems{{
		ID:        uuid.New(),
		ProductID: productID,
		Name:      "Golden Teacher Spores",
		Price:     decimal.RequireFromString("25.99"),
		Quantity:  2,
		Size:      enums.ProductSizeStandard,
	}}

	raw, err := items.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	encoded, ok := raw.(string)
	if !ok {
		t.Fatalf("expected string driver value, got %T", raw)
	}

	for _, input := range []any{encoded, []byte(encoded)} {
		var out LineItems
		if err := out.Scan(input); err != nil {
			t.Fatalf("scan %T: %v", input, err)
		}
		if len(out) != 1 || out[0].ProductID != productID {
			t.Fatalf("unexpected lines %+v", out)
		}
		if !out[0].Price.Equal(decimal.RequireFromString("25.99")) {
			t.Fatalf("price changed in round trip: %s", out[0].Price)
		}
	}

	var empty LineItems
	if err := empty.Scan(nil); err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("nil scan should yield empty slice, got %#v err=%v", empty, err)
	}
	if err := empty.Scan(42); err == nil {
		t.Fatal("expected unsupported type error")
	}
}

func TestLineItemsHelpers(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	items := LineItems{
		{ID: uuid.New(), ProductID: p1, Size: enums.ProductSizeStandard, Quantity: 3, Price: decimal.NewFromInt(10)},
		{ID: uuid.New(), ProductID: p1, Size: enums.ProductSizeLarge, Quantity: 1, Price: decimal.NewFromInt(12)},
		{ID: uuid.New(), ProductID: p2, Size: enums.ProductSizeStandard, Quantity: 2, Price: decimal.NewFromInt(5)},
	}

	if got := items.TotalQuantity(); got != 6 {
		t.Fatalf("expected total quantity 6, got %d", got)
	}
	if idx := items.FindVariant(p1, enums.ProductSizeLarge); idx != 1 {
		t.Fatalf("expected variant at 1, got %d", idx)
	}
	if idx := items.FindVariant(p2, enums.ProductSizeBulk); idx != -1 {
		t.Fatalf("expected missing variant, got %d", idx)
	}
	if idx := items.Find(items[2].ID); idx != 2 {
		t.Fatalf("expected line at 2, got %d", idx)
	}

	clone := items.Clone()
	clone[0].Quantity = 9
	if items[0].Quantity != 3 {
		t.Fatal("clone must not alias the original")
	}
	if !items[0].LineTotal().Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected line total %s", items[0].LineTotal())
	}
}

func TestShippingAddressNormalizeDefaultsCountry(t *testing.T) {
	addr := ShippingAddress{FirstName: " Ada ", LastName: "Lovelace", Email: " ADA@Example.com ", City: "Portland"}.Normalize()
	if addr.Country != "US" {
		t.Fatalf("expected US default, got %q", addr.Country)
	}
	if addr.Email != "ada@example.com" {
		t.Fatalf("expected lowered email, got %q", addr.Email)
	}
	if addr.FullName() != "Ada Lovelace" {
		t.Fatalf("unexpected full name %q", addr.FullName())
	}
}

func TestStatusHistoryAppendDoesNotAlias(t *testing.T) {
	base := StatusHistory{{Status: enums.OrderStatusPending, Timestamp: time.Now()}}
	next := base.Append(enums.OrderStatusProcessing, "paid", time.Now())
	if len(base) != 1 || len(next) != 2 {
		t.Fatalf("unexpected lengths base=%d next=%d", len(base), len(next))
	}
	if next[1].Status != enums.OrderStatusProcessing || next[1].Note != "paid" {
		t.Fatalf("unexpected appended entry %+v", next[1])
	}
}

func TestProductSizesLookup(t *testing.T) {
	sizes := ProductSizes{{Size: "large", Price: decimal.RequireFromString("39.99")}}
	variant, ok := sizes.Lookup("large")
	if !ok || variant.Price.String() != "39.99" {
		t.Fatalf("expected large variant, got %+v ok=%v", variant, ok)
	}
	if _, ok := sizes.Lookup("small"); ok {
		t.Fatal("did not expect small variant")
	}
}

func TestProductSizesCloneCopiesStock(t *testing.T) {
	stock := 4
	sizes := ProductSizes{
		{Size: "bulk", Price: decimal.RequireFromString("80"), Stock: &stock},
		{Size: "large", Price: decimal.RequireFromString("35")},
	}
	clone := sizes.Clone()
	*clone[0].Stock = 1
	if stock != 4 {
		t.Fatalf("clone should not share stock pointers, original now %d", stock)
	}
	if clone[1].HasStock() {
		t.Fatal("large draws on product stock")
	}

	raw, err := sizes.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var scanned ProductSizes
	if err := scanned.Scan(raw); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if variant, ok := scanned.Lookup("bulk"); !ok || !variant.HasStock() || *variant.Stock != 4 {
		t.Fatalf("expected bulk stock to survive the round trip, got %+v", variant)
	}
}
