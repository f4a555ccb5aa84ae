package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	productsvc "github.com/angelmondragon/mycoshop-backend/internal/products"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

type stubProductService struct {
	lastList   productsvc.ListProductsInput
	lastCreate productsvc.CreateProductInput
	lastID     uuid.UUID
	err        error
}

func (s *stubProductService) ListProducts(ctx context.Context, input productsvc.ListProductsInput) (*productsvc.ProductListResult, error) {
	s.lastList = input
	if s.err != nil {
		return nil, s.err
	}
	return &productsvc.ProductListResult{Products: []productsvc.ProductDTO{}, Source: productsvc.SourceDatabase}, nil
}

func (s *stubProductService) GetProduct(ctx context.Context, id uuid.UUID) (*productsvc.ProductResult, error) {
	s.lastID = id
	if s.err != nil {
		return nil, s.err
	}
	return &productsvc.ProductResult{Source: productsvc.SourceFallback}, nil
}

func (s *stubProductService) ListCategories(ctx context.Context) (*productsvc.CategoryResult, error) {
	return &productsvc.CategoryResult{Categories: []enums.ProductCategory{enums.ProductCategorySpores}, Source: productsvc.SourceDatabase}, s.err
}

func (s *stubProductService) CreateProduct(ctx context.Context, input productsvc.CreateProductInput) (*productsvc.ProductDTO, error) {
	s.lastCreate = input
	return &productsvc.ProductDTO{}, s.err
}

func (s *stubProductService) UpdateProduct(ctx context.Context, id uuid.UUID, input productsvc.UpdateProductInput) (*productsvc.ProductDTO, error) {
	s.lastID = id
	return &productsvc.ProductDTO{}, s.err
}

func (s *stubProductService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	s.lastID = id
	return s.err
}

func withIDParam(req *http.Request, id string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestListProductsParsesFilters(t *testing.T) {
	svc := &stubProductService{}
	url := "/api/products?category=growkits&featured=true&search=oyster&minPrice=10&maxPrice=50.5&sortBy=price&sortOrder=asc&page=2&limit=500"
	resp := httptest.NewRecorder()

	ListProducts(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, url, nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	in := svc.lastList
	if in.Filters.Category == nil || *in.Filters.Category != enums.ProductCategoryGrowKits {
		t.Fatalf("unexpected category filter %+v", in.Filters.Category)
	}
	if in.Filters.Featured == nil || !*in.Filters.Featured {
		t.Fatal("expected featured filter")
	}
	if in.Filters.Search != "oyster" {
		t.Fatalf("unexpected search %q", in.Filters.Search)
	}
	if in.Filters.MinPrice == nil || !in.Filters.MinPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected min price %v", in.Filters.MinPrice)
	}
	if in.Filters.MaxPrice == nil || !in.Filters.MaxPrice.Equal(decimal.RequireFromString("50.5")) {
		t.Fatalf("unexpected max price %v", in.Filters.MaxPrice)
	}
	if in.SortBy != enums.ProductSortPrice || in.SortDesc {
		t.Fatalf("unexpected sort %s desc=%v", in.SortBy, in.SortDesc)
	}
	if in.Pagination.Page != 2 || in.Pagination.Limit != 100 {
		t.Fatalf("unexpected pagination %+v", in.Pagination)
	}
}

func TestListProductsSortByDefaultsDescending(t *testing.T) {
	svc := &stubProductService{}
	resp := httptest.NewRecorder()
	ListProducts(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/products?sortBy=name", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastList.SortBy != enums.ProductSortName || !svc.lastList.SortDesc {
		t.Fatalf("unexpected sort %+v", svc.lastList)
	}
}

func TestListProductsRejectsBadParams(t *testing.T) {
	tests := []string{
		"/api/products?category=plants",
		"/api/products?sortBy=color",
		"/api/products?sortOrder=sideways",
		"/api/products?minPrice=-1",
		"/api/products?featured=maybe",
	}
	for _, url := range tests {
		resp := httptest.NewRecorder()
		ListProducts(&stubProductService{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, url, nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", url, resp.Code)
		}
	}
}

func TestGetProductReportsSource(t *testing.T) {
	svc := &stubProductService{}
	id := uuid.New()
	req := withIDParam(httptest.NewRequest(http.MethodGet, "/api/products/"+id.String(), nil), id.String())
	resp := httptest.NewRecorder()

	GetProduct(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastID != id {
		t.Fatalf("unexpected id %s", svc.lastID)
	}
	if !strings.Contains(resp.Body.String(), `"source":"fallback"`) {
		t.Fatalf("expected fallback source: %s", resp.Body.String())
	}
}

func TestGetProductBadID(t *testing.T) {
	req := withIDParam(httptest.NewRequest(http.MethodGet, "/api/products/abc", nil), "abc")
	resp := httptest.NewRecorder()
	GetProduct(&stubProductService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateProduct(t *testing.T) {
	svc := &stubProductService{}
	body := `{"name":"Lion's Mane Kit","description":"All-in-one grow bag","price":29.99,"category":"growkits","stock":12}`
	resp := httptest.NewRecorder()

	CreateProduct(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(body)))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if !svc.lastCreate.Price.Equal(decimal.RequireFromString("29.99")) || svc.lastCreate.Stock != 12 {
		t.Fatalf("unexpected create input %+v", svc.lastCreate)
	}
}

func TestDeleteProductNotFound(t *testing.T) {
	svc := &stubProductService{err: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	id := uuid.New()
	req := withIDParam(httptest.NewRequest(http.MethodDelete, "/api/products/"+id.String(), nil), id.String())
	resp := httptest.NewRecorder()

	DeleteProduct(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestUpdateProductDependencyError(t *testing.T) {
	svc := &stubProductService{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("boom"), "update product")}
	id := uuid.New()
	req := withIDParam(httptest.NewRequest(http.MethodPut, "/api/products/"+id.String(), strings.NewReader(`{"stock":3}`)), id.String())
	resp := httptest.NewRecorder()

	UpdateProduct(svc, nil).ServeHTTP(resp, req)

	if resp.Code < http.StatusInternalServerError {
		t.Fatalf("expected 5xx got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "boom") {
		t.Fatalf("internal error leaked: %s", resp.Body.String())
	}
}
