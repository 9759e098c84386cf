package storefront

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxImageBytes caps how much of an image response is read. Shopify caps
// uploads at 20MB; anything larger is broken input.
const maxImageBytes = 32 << 20

// ProductImage identifies one image attached to a product.
type ProductImage struct {
	ProductID int64  `json:"product_id"`
	ImageID   int64  `json:"image_id"`
	SourceURL string `json:"src"`
	Alt       string `json:"alt,omitempty"`
}

// Options configures a Shopify Admin API client.
type Options struct {
	// BaseURL is the store origin (https://example.myshopify.com).
	BaseURL     string
	APIKey      string
	APIPassword string
	APIVersion  string
	HTTPClient  *http.Client
}

// Client talks to the Shopify Admin REST API.
type Client struct {
	baseURL     string
	apiKey      string
	apiPassword string
	apiVersion  string
	client      *http.Client
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2024-04"
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:      strings.TrimSpace(opts.APIKey),
		apiPassword: strings.TrimSpace(opts.APIPassword),
		apiVersion:  apiVersion,
		client:      httpClient,
	}
}

// Ping verifies the store is reachable and the credentials are accepted.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("storefront client is nil")
	}
	var payload struct {
		Shop struct {
			Name string `json:"name"`
		} `json:"shop"`
	}
	if err := c.getJSON(ctx, c.adminURL("shop.json"), &payload); err != nil {
		return fmt.Errorf("ping shop: %w", err)
	}
	return nil
}

// ListProductImages returns every image of every product in the store.
func (c *Client) ListProductImages(ctx context.Context) ([]ProductImage, error) {
	if c == nil {
		return nil, fmt.Errorf("storefront client is nil")
	}

	var payload struct {
		Products []struct {
			ID     int64 `json:"id"`
			Images []struct {
				ID  int64  `json:"id"`
				Src string `json:"src"`
				Alt string `json:"alt"`
			} `json:"images"`
		} `json:"products"`
	}
	if err := c.getJSON(ctx, c.adminURL("products.json?limit=250&fields=id,images"), &payload); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	images := make([]ProductImage, 0, len(payload.Products))
	for _, product := range payload.Products {
		for _, img := range product.Images {
			if strings.TrimSpace(img.Src) == "" {
				continue
			}
			images = append(images, ProductImage{
				ProductID: product.ID,
				ImageID:   img.ID,
				SourceURL: img.Src,
				Alt:       img.Alt,
			})
		}
	}
	return images, nil
}

// FetchImage downloads the raw bytes for an image URL.
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("storefront client is nil")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch image status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image body was empty")
	}
	return data, nil
}

// ReplaceImage uploads the new image bytes as a product image attachment and
// then removes the image it replaces. The upload happens first so a delete
// failure never leaves the product without the picture.
func (c *Client) ReplaceImage(ctx context.Context, productID, imageID int64, data []byte) error {
	if c == nil {
		return fmt.Errorf("storefront client is nil")
	}
	if len(data) == 0 {
		return fmt.Errorf("image payload is required")
	}

	body, err := json.Marshal(map[string]any{
		"image": map[string]any{
			"attachment": base64.StdEncoding.EncodeToString(data),
		},
	})
	if err != nil {
		return fmt.Errorf("marshal image upload: %w", err)
	}

	uploadURL := c.adminURL(fmt.Sprintf("products/%d/images.json", productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build image upload: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload image status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if imageID == 0 {
		return nil
	}
	return c.deleteImage(ctx, productID, imageID)
}

func (c *Client) deleteImage(ctx context.Context, productID, imageID int64) error {
	deleteURL := c.adminURL(fmt.Sprintf("products/%d/images/%d.json", productID, imageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteURL, nil)
	if err != nil {
		return fmt.Errorf("build image delete: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete replaced image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete replaced image status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" || c.apiPassword != "" {
		req.SetBasicAuth(c.apiKey, c.apiPassword)
	}
}

func (c *Client) adminURL(path string) string {
	return fmt.Sprintf("%s/admin/api/%s/%s", c.baseURL, c.apiVersion, path)
}
