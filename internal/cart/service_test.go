package cart

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/pricing"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

type productStore struct {
	db *gorm.DB
}

func (p productStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func createProduct(t *testing.T, conn *gorm.DB, name, price string, stock int) models.Product {
	t.Helper()
	product := models.Product{
		Name:        name,
		Description: name + " description",
		Price:       decimal.RequireFromString(price),
		Category:    enums.ProductCategorySpores,
		Images:      types.ProductImages{{URL: "/images/" + name + ".jpg"}},
		Stock:       stock,
		Sizes: types.ProductSizes{
			{Size: "large", Price: decimal.RequireFromString("35.00")},
		},
		Active: true,
	}
	require.NoError(t, conn.Create(&product).Error)
	return product
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(conn), productStore{db: conn}, pricing.NewEngine(), nil)
	require.NoError(t, err)
	return svc
}

func TestGetCreatesEmptyCart(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)

	cart, err := svc.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, cart.ID)
	assert.Empty(t, cart.Items)
	assert.Equal(t, "0.00", cart.Total.String())
	assert.Equal(t, "0.00", cart.Shipping.String())
	assert.Equal(t, enums.CartStatusActive, cart.Status)

	again, err := svc.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, *cart.ID, *again.ID)
}

func TestAddItemPricesCartBelowFreeShipping(t *testing.T) {
	conn := dbtest.Open(t)
	p1 := createProduct(t, conn, "golden", "20.00", 10)
	svc := newTestService(t, conn)

	cart, err := svc.AddItem(context.Background(), "sess-a", AddItemInput{ProductID: p1.ID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, enums.ProductSizeStandard, cart.Items[0].Size)
	assert.Equal(t, "40.00", cart.Items[0].LineTotal.String())
	assert.Equal(t, "/images/golden.jpg", cart.Items[0].Image)
	assert.Equal(t, "40.00", cart.Subtotal.String())
	assert.Equal(t, "3.20", cart.Tax.String())
	assert.Equal(t, "9.99", cart.Shipping.String())
	assert.Equal(t, "53.19", cart.Total.String())
}

func TestAddItemQualifiesForFreeShipping(t *testing.T) {
	conn := dbtest.Open(t)
	p1 := createProduct(t, conn, "golden", "20.00", 10)
	svc := newTestService(t, conn)

	cart, err := svc.AddItem(context.Background(), "sess-b", AddItemInput{ProductID: p1.ID, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, "60.00", cart.Subtotal.String())
	assert.Equal(t, "4.80", cart.Tax.String())
	assert.Equal(t, "0.00", cart.Shipping.String())
	assert.Equal(t, "64.80", cart.Total.String())
}

func TestAddItemHonoursSizeStock(t *testing.T) {
	conn := dbtest.Open(t)
	p1 := createProduct(t, conn, "golden", "20.00", 10)
	bulkStock := 2
	p1.Sizes = append(p1.Sizes, types.SizeVariant{Size: "bulk", Price: decimal.RequireFromString("80.00"), Stock: &bulkStock})
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", p1.ID).UpdateColumn("sizes", p1.Sizes).Error)
	svc := newTestService(t, conn)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "sess-z", AddItemInput{ProductID: p1.ID, Quantity: 3, Size: enums.ProductSizeBulk})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock))

	cart, err := svc.AddItem(ctx, "sess-z", AddItemInput{ProductID: p1.ID, Quantity: 2, Size: enums.ProductSizeBulk})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "80.00", cart.Items[0].Price.String())

	_, err = svc.UpdateQuantity(ctx, "sess-z", cart.Items[0].LineID, 3)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock))

	// the standard size still draws on the product stock
	cart, err = svc.AddItem(ctx, "sess-z", AddItemInput{ProductID: p1.ID, Quantity: 5, Size: enums.ProductSizeStandard})
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}

func TestAddItemMergesSameVariant(t *testing.T) {
	conn := dbtest.Open(t)
	p1 := createProduct(t, conn, "golden", "20.00", 10)
	svc := newTestService(t, conn)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "sess-c", AddItemInput{ProductID: p1.ID, Quantity: 3, Size: enums.ProductSizeStandard})
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, "sess-c", AddItemInput{ProductID: p1.ID, Quantity: 2, Size: enums.ProductSizeStandard})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)

	cart, err = svc.AddItem(ctx, "sess-c", AddItemInput{ProductID: p1.ID, Quantity: 1, Size: enums.ProductSizeLarge})
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, "35.00", cart.Items[1].Price.String())
	assert.Equal(t, 6, cart.ItemCount)
}

func TestAddItemRejectsLineOverLimit(t *testing.T) {
	conn := dbtest.Open(t)
	p1 := createProduct(t, conn, "golden", "20.00", 100)
	svc := newTestService(t, conn)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "sess-l", AddItemInput{ProductID: p1.ID, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "sess-l", AddItemInput{ProductID: p1.ID, Quantity: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeItemLimit))

	count, err := svc.Count(ctx, "sess-l")
	require.NoError(t, err)
	assert.Equal(t, 10, count.ItemCount)
}

func TestAddItemRejectsCartOverLimit(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p := createProduct(t, conn, fmt.Sprintf("p%d", i), "1.00", 100)
		_, err := svc.AddItem(ctx, "sess-m", AddItemInput{ProductID: p.ID, Quantity: 10})
		require.NoError(t, err)
	}
	extra := createProduct(t, conn, "extra", "1.00", 100)
	_, err := svc.AddItem(ctx, "sess-m", AddItemInput{ProductID: extra.ID, Quantity: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCartLimit))
}

func TestAddItemValidatesProductAndStock(t *testing.T) {
	conn := dbtest.Open(t)
	p1 := createProduct(t, conn, "golden", "20.00", 2)
	svc := newTestService(t, conn)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "sess-v", AddItemInput{ProductID: uuid.New(), Quantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.AddItem(ctx, "sess-v", AddItemInput{ProductID: p1.ID, Quantity: 3})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock))

	_, err = svc.AddItem(ctx, "sess-v", AddItemInput{ProductID: p1.ID, Quantity: 0})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity))

	_, err = svc.AddItem(ctx, "sess-v", AddItemInput{ProductID: p1.ID, Quantity: 1, Size: "giant"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", p1.ID).Update("active", false).Error)
	_, err = svc.AddItem(ctx, "sess-v", AddItemInput{ProductID: p1.ID, Quantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateQuantityAndRemove(t *testing.T) {
	conn := dbtest.Open(t)
	p1 := createProduct(t, conn, "golden", "20.00", 10)
	p2 := createProduct(t, conn, "cubensis", "12.50", 10)
	svc := newTestService(t, conn)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "sess-u", AddItemInput{ProductID: p1.ID, Quantity: 1})
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, "sess-u", AddItemInput{ProductID: p2.ID, Quantity: 1})
	require.NoError(t, err)
	first := cart.Items[0].LineID
	second := cart.Items[1].LineID

	cart, err = svc.UpdateQuantity(ctx, "sess-u", first, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, cart.Items[0].Quantity)
	assert.Equal(t, "92.50", cart.Subtotal.String())

	_, err = svc.UpdateQuantity(ctx, "sess-u", first, -1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity))

	_, err = svc.UpdateQuantity(ctx, "sess-u", first, 11)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeItemLimit))

	_, err = svc.UpdateQuantity(ctx, "sess-u", uuid.New(), 2)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	cart, err = svc.UpdateQuantity(ctx, "sess-u", first, 0)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, second, cart.Items[0].LineID)

	cart, err = svc.RemoveItem(ctx, "sess-u", second)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, "0.00", cart.Total.String())
}

func TestClearIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)
	p1 := createProduct(t, conn, "golden", "20.00", 10)
	svc := newTestService(t, conn)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "sess-x", AddItemInput{ProductID: p1.ID, Quantity: 2})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		cart, err := svc.Clear(ctx, "sess-x")
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
		assert.Equal(t, "0.00", cart.Total.String())
	}

	cart, err := svc.Clear(ctx, "never-seen")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestTotalsIgnoreLineOrder(t *testing.T) {
	conn := dbtest.Open(t)
	a := createProduct(t, conn, "a", "3.335", 10)
	b := createProduct(t, conn, "b", "7.105", 10)
	svc := newTestService(t, conn)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "order-1", AddItemInput{ProductID: a.ID, Quantity: 3})
	require.NoError(t, err)
	first, err := svc.AddItem(ctx, "order-1", AddItemInput{ProductID: b.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, "order-2", AddItemInput{ProductID: b.ID, Quantity: 1})
	require.NoError(t, err)
	second, err := svc.AddItem(ctx, "order-2", AddItemInput{ProductID: a.ID, Quantity: 3})
	require.NoError(t, err)

	assert.Equal(t, first.Subtotal, second.Subtotal)
	assert.Equal(t, first.Total, second.Total)
}

// racingRepo loses the version check a fixed number of times.
type racingRepo struct {
	CartRepository
	losses int
}

func (r *racingRepo) SaveIfVersion(ctx context.Context, cart *models.Cart, expected int) (bool, error) {
	if r.losses > 0 {
		r.losses--
		return false, nil
	}
	return r.CartRepository.SaveIfVersion(ctx, cart, expected)
}

func TestMutateRetriesOnVersionConflict(t *testing.T) {
	conn := dbtest.Open(t)
	p1 := createProduct(t, conn, "golden", "20.00", 10)
	ctx := context.Background()

	repo := &racingRepo{CartRepository: NewRepository(conn), losses: 2}
	svc, err := NewService(repo, productStore{db: conn}, nil, nil)
	require.NoError(t, err)

	cart, err := svc.AddItem(ctx, "sess-r", AddItemInput{ProductID: p1.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	repo.losses = maxWriteAttempts
	_, err = svc.AddItem(ctx, "sess-r", AddItemInput{ProductID: p1.ID, Quantity: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	count, err := svc.Count(ctx, "sess-r")
	require.NoError(t, err)
	assert.Equal(t, 1, count.ItemCount)
}

// downRepo fails every call the way an unreachable database does.
type downRepo struct{ CartRepository }

var errDown = fmt.Errorf("dial tcp: %w", driver.ErrBadConn)

func (downRepo) FindBySession(context.Context, string) (*models.Cart, error) { return nil, errDown }

func TestGetDegradesWhenStoreUnavailable(t *testing.T) {
	conn := dbtest.Open(t)
	p1 := createProduct(t, conn, "golden", "20.00", 10)
	svc, err := NewService(downRepo{}, productStore{db: conn}, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	cart, err := svc.Get(ctx, "sess-d")
	require.NoError(t, err)
	assert.True(t, cart.Degraded)
	assert.Nil(t, cart.ID)
	assert.Empty(t, cart.Items)

	_, err = svc.AddItem(ctx, "sess-d", AddItemInput{ProductID: p1.ID, Quantity: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStoreUnavailable))
}
