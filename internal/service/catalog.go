package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/safar/go-retail-backend/internal/auth"
	"github.com/safar/go-retail-backend/internal/cache"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/safar/go-retail-backend/internal/objstore"
	"github.com/safar/go-retail-backend/internal/store"
)

var catalogRegions = []cache.Region{
	cache.RegionCatalogAll,
	cache.RegionCatalogAdmin,
	cache.RegionCatalogFeatured,
	cache.RegionDashboard,
}

// CatalogService serves the product catalog through its cache regions
// and applies admin-only writes with region invalidation after commit.
type CatalogService struct {
	db     *sql.DB
	cache  *cache.Cache
	images objstore.Store
}

func NewCatalogService(db *sql.DB, c *cache.Cache, images objstore.Store) *CatalogService {
	return &CatalogService{db: db, cache: c, images: images}
}

// List is the public storefront read, cached per page.
func (s *CatalogService) List(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	suffix := fmt.Sprintf("%d.%d", page, pageSize)

	var cached store.OffsetPage
	hit, err := s.cache.Get(ctx, cache.RegionCatalogAll, suffix, &cached)
	if err != nil {
		slog.Warn("cache read failed", "region", cache.RegionCatalogAll, "err", err)
	}
	if hit {
		return &cached, nil
	}

	result, err := store.ListProducts(ctx, s.db, page, pageSize)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, cache.RegionCatalogAll, suffix, result); err != nil {
		slog.Warn("cache write failed", "region", cache.RegionCatalogAll, "err", err)
	}

	return result, nil
}

// AdminList is the admin catalog view; same rows, separate region so an
// admin browsing does not warm customer entries.
func (s *CatalogService) AdminList(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	suffix := fmt.Sprintf("%d.%d", page, pageSize)

	var cached store.OffsetPage
	hit, err := s.cache.Get(ctx, cache.RegionCatalogAdmin, suffix, &cached)
	if err != nil {
		slog.Warn("cache read failed", "region", cache.RegionCatalogAdmin, "err", err)
	}
	if hit {
		return &cached, nil
	}

	result, err := store.ListProducts(ctx, s.db, page, pageSize)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, cache.RegionCatalogAdmin, suffix, result); err != nil {
		slog.Warn("cache write failed", "region", cache.RegionCatalogAdmin, "err", err)
	}

	return result, nil
}

func (s *CatalogService) Featured(ctx context.Context) ([]models.Product, error) {
	var cached []models.Product
	hit, err := s.cache.Get(ctx, cache.RegionCatalogFeatured, "", &cached)
	if err != nil {
		slog.Warn("cache read failed", "region", cache.RegionCatalogFeatured, "err", err)
	}
	if hit {
		return cached, nil
	}

	products, err := store.ListFeaturedProducts(ctx, s.db)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, cache.RegionCatalogFeatured, "", products); err != nil {
		slog.Warn("cache write failed", "region", cache.RegionCatalogFeatured, "err", err)
	}

	return products, nil
}

func (s *CatalogService) Get(ctx context.Context, id int64) (*models.Product, error) {
	return store.GetProduct(ctx, s.db, id)
}

func (s *CatalogService) Create(ctx context.Context, req store.CreateProductRequest) (*models.Product, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, &ValidationError{Field: "name"}
	}
	if req.Price.IsNegative() {
		return nil, &ValidationError{Field: "price"}
	}

	product, err := store.CreateProduct(ctx, s.db, req)
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	return product, nil
}

func (s *CatalogService) Update(ctx context.Context, id int64, req store.CreateProductRequest) (*models.Product, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	product, err := store.UpdateProduct(ctx, s.db, id, req)
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	return product, nil
}

// Delete removes a product; its cart lines, featured mark and image
// records cascade in the database.
func (s *CatalogService) Delete(ctx context.Context, id int64) error {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return err
	}

	if err := store.DeleteProduct(ctx, s.db, id); err != nil {
		return err
	}

	s.invalidateCatalog(ctx)
	return nil
}

func (s *CatalogService) Feature(ctx context.Context, productID int64) error {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return err
	}

	if err := store.FeatureProduct(ctx, s.db, productID); err != nil {
		return err
	}

	s.invalidateCatalog(ctx)
	return nil
}

func (s *CatalogService) Unfeature(ctx context.Context, productID int64) error {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return err
	}

	if err := store.UnfeatureProduct(ctx, s.db, productID); err != nil {
		return err
	}

	s.invalidateCatalog(ctx)
	return nil
}

func (s *CatalogService) AddImage(ctx context.Context, productID int64, data []byte, contentType string) (*models.ProductImage, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	path, err := s.images.Put(ctx, data, contentType)
	if err != nil {
		return nil, err
	}

	image, err := store.AddProductImage(ctx, s.db, productID, path)
	if err != nil {
		// Keep storage and records consistent when the insert fails.
		if delErr := s.images.Delete(ctx, path); delErr != nil {
			slog.Warn("orphaned media object", "path", path, "err", delErr)
		}
		return nil, err
	}

	s.invalidateCatalog(ctx)
	return image, nil
}

func (s *CatalogService) DeleteImage(ctx context.Context, imageID int64) error {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return err
	}

	path, err := store.DeleteProductImage(ctx, s.db, imageID)
	if err != nil {
		return err
	}
	if err := s.images.Delete(ctx, path); err != nil {
		slog.Warn("media delete failed", "path", path, "err", err)
	}

	s.invalidateCatalog(ctx)
	return nil
}

func (s *CatalogService) Categories(ctx context.Context) ([]models.Category, error) {
	return store.ListCategories(ctx, s.db)
}

func (s *CatalogService) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &ValidationError{Field: "name"}
	}

	return store.CreateCategory(ctx, s.db, name)
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return err
	}

	return store.DeleteCategory(ctx, s.db, id)
}

func (s *CatalogService) invalidateCatalog(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, catalogRegions...); err != nil {
		slog.Warn("cache invalidation failed", "err", err)
	}
}
