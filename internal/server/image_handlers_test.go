package server

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"classifieds/internal/models"
	"classifieds/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageUploadRequest(t *testing.T, path, filename string, content []byte, isMain bool) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if content != nil {
		part, err := writer.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if isMain {
		require.NoError(t, writer.WriteField("is_main", "true"))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	return req
}

func TestUploadProductImage(t *testing.T) {
	e := newTestEnv(t)
	product := e.factory.Product(sellerID)
	path := fmt.Sprintf("/product/%d/images/", product.ID)
	png := testutil.TinyPNG(t, 8, 8)

	resp := e.do(t, imageUploadRequest(t, path, "photo.png", png, false), sellerID)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	first := decode[models.ProductImage](t, resp)
	assert.True(t, first.IsMain)
	assert.True(t, strings.HasPrefix(first.Image, fmt.Sprintf("products/%d/", product.ID)))
	assert.True(t, strings.HasSuffix(first.Image, ".png"))
	assert.NotEmpty(t, first.URL)

	_, ok := e.store.Get(first.Image)
	assert.True(t, ok, "object stored")

	resp = e.do(t, imageUploadRequest(t, path, "second.png", png, true), sellerID)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	second := decode[models.ProductImage](t, resp)
	assert.True(t, second.IsMain)

	detail := decode[detailPage](t, e.get(t, fmt.Sprintf("/product/%d/", product.ID), 0))
	require.NotNil(t, detail.Product.Image)
	assert.Equal(t, second.Image, *detail.Product.Image)
	require.Len(t, detail.Product.Images, 2)
	for _, img := range detail.Product.Images {
		assert.NotEmpty(t, img.URL)
	}

	mainPath := fmt.Sprintf("/product/%d/images/%d/main/", product.ID, first.ID)
	resp = e.postForm(t, mainPath, nil, sellerID)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, decode[models.ProductImage](t, resp).IsMain)
}

func TestUploadProductImage_Rejections(t *testing.T) {
	e := newTestEnv(t)
	product := e.factory.Product(sellerID)
	path := fmt.Sprintf("/product/%d/images/", product.ID)
	png := testutil.TinyPNG(t, 8, 8)

	resp := e.do(t, imageUploadRequest(t, path, "photo.png", png, false), buyerID)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = e.do(t, imageUploadRequest(t, path, "photo.png", png, false), 0)
	requireLoginRedirect(t, resp, path)

	resp = e.do(t, imageUploadRequest(t, path, "notes.txt", []byte("plain text"), false), sellerID)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[models.ErrorResponse](t, resp).Fields, "image")

	resp = e.do(t, imageUploadRequest(t, path, "", nil, false), sellerID)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = e.postForm(t, fmt.Sprintf("/product/%d/images/abc/main/", product.ID), nil, sellerID)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid image ID", decode[models.ErrorResponse](t, resp).Error)
}

func TestUploadProductImage_StorageDisabled(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	db := testutil.NewSQLiteDB(t)
	srv, err := NewServerWithDeps(testConfig(), db, nil, nil)
	require.NoError(t, err)
	e := &testEnv{srv: srv, app: srv.NewApp(), db: db, factory: testutil.NewFactory(t, db)}
	product := e.factory.Product(sellerID)

	resp := e.do(t, imageUploadRequest(t, fmt.Sprintf("/product/%d/images/", product.ID), "photo.png", testutil.TinyPNG(t, 2, 2), false), sellerID)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
