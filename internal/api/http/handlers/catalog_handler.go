package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/storefront-auth/internal/api/dto"
	"github.com/spec-kit/storefront-auth/internal/auth"
	"github.com/spec-kit/storefront-auth/internal/domain"
	"github.com/spec-kit/storefront-auth/internal/repository"
	apperrors "github.com/spec-kit/storefront-auth/pkg/util/errorutil"
)

// CatalogHandler exposes the product surface the permission table
// gates: products:read for listing, products:write for creation.
type CatalogHandler struct {
	products repository.ProductRepository
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(products repository.ProductRepository) *CatalogHandler {
	return &CatalogHandler{products: products}
}

// List handles GET /api/catalog/products.
func (h *CatalogHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	products, err := h.products.ListActive(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}

	out := make([]dto.ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, productResponse(p))
	}
	return c.JSON(fiber.Map{"data": out})
}

// Create handles POST /api/catalog/products.
func (h *CatalogHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorizedCode(auth.CodeMissingCredential, "authentication required")
	}

	var req dto.ProductCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload")
	}
	if req.Name == "" || req.PriceCents <= 0 {
		return apperrors.NewValidationError("name and positive priceCents required")
	}

	product := &domain.Product{
		SupplierID: principal.UserID,
		Name:       req.Name,
		PriceCents: req.PriceCents,
		Active:     true,
	}
	if err := h.products.Create(c.UserContext(), product); err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": productResponse(product)})
}

func productResponse(p *domain.Product) dto.ProductResponse {
	return dto.ProductResponse{
		ID:         p.ID,
		SupplierID: p.SupplierID,
		Name:       p.Name,
		PriceCents: p.PriceCents,
		Active:     p.Active,
	}
}
