package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"classifieds/internal/authz"
	"classifieds/internal/middleware"
	"classifieds/internal/models"
	"classifieds/internal/observability"
	"classifieds/internal/repository"
	"classifieds/internal/storage"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultImageMaxUploadSizeMB = 5
	DefaultImageURLTTL          = 15 * time.Minute
	DefaultMaxImagesPerProduct  = 10
	MaxImageDimension           = 8192
)

type UploadImageInput struct {
	ProductID   uint
	Filename    string
	ContentType string
	Content     []byte
	IsMain      bool
}

// ImageService stores product pictures in the object store and keeps their references.
type ImageService struct {
	products           repository.ProductRepository
	images             repository.ImageRepository
	store              storage.ObjectStore
	guard              *authz.Guard
	maxUploadSizeBytes int64
	maxPerProduct      int
	urlTTL             time.Duration
	newKey             func(productID uint, ext string) string
}

// ImageServiceConfig tunes upload limits. Zero values pick the defaults.
type ImageServiceConfig struct {
	MaxUploadSizeMB     int
	MaxImagesPerProduct int
	URLTTL              time.Duration
}

// NewImageService creates an ImageService. A nil store disables uploads.
func NewImageService(
	products repository.ProductRepository,
	images repository.ImageRepository,
	store storage.ObjectStore,
	guard *authz.Guard,
	cfg ImageServiceConfig,
) *ImageService {
	maxUploadSizeMB := DefaultImageMaxUploadSizeMB
	if cfg.MaxUploadSizeMB > 0 {
		maxUploadSizeMB = cfg.MaxUploadSizeMB
	}
	maxPerProduct := DefaultMaxImagesPerProduct
	if cfg.MaxImagesPerProduct > 0 {
		maxPerProduct = cfg.MaxImagesPerProduct
	}
	urlTTL := DefaultImageURLTTL
	if cfg.URLTTL > 0 {
		urlTTL = cfg.URLTTL
	}

	return &ImageService{
		products:           products,
		images:             images,
		store:              store,
		guard:              guard,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
		maxPerProduct:      maxPerProduct,
		urlTTL:             urlTTL,
		newKey:             objectKey,
	}
}

func objectKey(productID uint, ext string) string {
	return fmt.Sprintf("products/%d/%s%s", productID, uuid.NewString(), ext)
}

// Enabled reports whether an object store is configured.
func (s *ImageService) Enabled() bool {
	return s.store != nil
}

// Upload validates the picture, writes it to the object store and records it
// against the caller's product.
func (s *ImageService) Upload(ctx context.Context, who authz.Identity, in UploadImageInput) (*models.ProductImage, error) {
	if !s.Enabled() {
		return nil, models.NewUnavailableError("Image storage is not configured")
	}
	if s.guard.Authorize(who, authz.ActionEdit, nil) == authz.DenyUnauthenticated {
		return nil, models.NewUnauthorizedError("Login required")
	}
	if _, err := s.products.GetOwned(ctx, in.ProductID, who.UserID); err != nil {
		return nil, err
	}
	existing, err := s.images.ListByProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= s.maxPerProduct {
		return nil, models.NewFieldValidationError(map[string]string{
			"image": fmt.Sprintf("A product can have at most %d pictures.", s.maxPerProduct),
		})
	}

	if len(in.Content) == 0 {
		return nil, models.NewFieldValidationError(map[string]string{"image": "No file was submitted."})
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewFieldValidationError(map[string]string{
			"image": fmt.Sprintf("File too large (max %dMB).", s.maxUploadSizeBytes/(1024*1024)),
		})
	}

	detectedType := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detectedType) {
		return nil, models.NewFieldValidationError(map[string]string{"image": "Upload a valid image."})
	}
	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") && !isMatchingContentType(provided, detectedType) {
		return nil, models.NewFieldValidationError(map[string]string{"image": "Image content type mismatch."})
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(in.Content))
	if err != nil || decodedFormatToMime(format) != normalizeContentType(detectedType) {
		return nil, models.NewFieldValidationError(map[string]string{"image": "Upload a valid image."})
	}
	if cfg.Width > MaxImageDimension || cfg.Height > MaxImageDimension {
		return nil, models.NewFieldValidationError(map[string]string{"image": "Image dimensions are too large."})
	}

	key := s.newKey(in.ProductID, extensionFor(in.Filename, format))
	if err := s.store.Put(ctx, key, bytes.NewReader(in.Content), int64(len(in.Content)), detectedType); err != nil {
		return nil, models.NewInternalError(fmt.Errorf("store image: %w", err))
	}

	record := &models.ProductImage{
		ProductID: in.ProductID,
		Image:     key,
		IsMain:    in.IsMain,
	}
	if err := s.images.Create(ctx, record); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			middleware.Logger.WarnContext(ctx, "failed to remove orphaned image", "key", key, "error", delErr)
		}
		return nil, err
	}
	observability.ImagesUploaded.Inc()

	s.attachURL(ctx, record)
	return record, nil
}

// SetMain makes imageID the main picture of the caller's product.
func (s *ImageService) SetMain(ctx context.Context, who authz.Identity, productID, imageID uint) (*models.ProductImage, error) {
	if s.guard.Authorize(who, authz.ActionEdit, nil) == authz.DenyUnauthenticated {
		return nil, models.NewUnauthorizedError("Login required")
	}
	if _, err := s.products.GetOwned(ctx, productID, who.UserID); err != nil {
		return nil, err
	}
	img, err := s.images.SetMain(ctx, productID, imageID)
	if err != nil {
		return nil, err
	}
	s.attachURL(ctx, img)
	return img, nil
}

// AttachURLs fills in presigned download links for the product's images.
// Without an object store the references are left as they are.
func (s *ImageService) AttachURLs(ctx context.Context, products ...*models.Product) {
	if !s.Enabled() {
		return
	}
	for _, p := range products {
		if p == nil {
			continue
		}
		for i := range p.Images {
			s.attachURL(ctx, &p.Images[i])
		}
	}
}

func (s *ImageService) attachURL(ctx context.Context, img *models.ProductImage) {
	if !s.Enabled() {
		return
	}
	url, err := s.store.PresignGet(ctx, img.Image, s.urlTTL)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "failed to presign image", "key", img.Image, "error", err)
		return
	}
	img.URL = url
}

func extensionFor(filename, format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "webp":
		return "." + format
	}
	return strings.ToLower(filepath.Ext(filename))
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}
