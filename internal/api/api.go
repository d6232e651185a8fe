// Package api is the HTTP surface over the services: request parsing,
// principal resolution, CSRF, and error-to-status mapping. All business
// rules live below it.
package api

import (
	"net/http"
	"strconv"

	"github.com/safar/go-retail-backend/internal/auth"
	"github.com/safar/go-retail-backend/internal/payment"
	"github.com/safar/go-retail-backend/internal/service"
)

type Server struct {
	tokens   *auth.TokenIssuer
	gateway  payment.Gateway
	carts    *service.CartService
	checkout *service.CheckoutService
	final    *service.Finalizer
	orders   *service.OrderService
	catalog  *service.CatalogService
	users    *service.UserService
}

func NewServer(
	tokens *auth.TokenIssuer,
	gateway payment.Gateway,
	carts *service.CartService,
	checkout *service.CheckoutService,
	final *service.Finalizer,
	orders *service.OrderService,
	catalog *service.CatalogService,
	users *service.UserService,
) *Server {
	return &Server{
		tokens:   tokens,
		gateway:  gateway,
		carts:    carts,
		checkout: checkout,
		final:    final,
		orders:   orders,
		catalog:  catalog,
		users:    users,
	}
}

// Handler wires the routes. The webhook sits outside the CSRF layer;
// the payment provider cannot send the header.
func (s *Server) Handler() http.Handler {
	app := http.NewServeMux()

	app.HandleFunc("POST /user/register", s.handleRegister)
	app.HandleFunc("POST /user/login", s.handleLogin)
	app.HandleFunc("POST /user/verify", s.handleVerify)
	app.HandleFunc("GET /user/addresses", s.handleListAddresses)
	app.HandleFunc("POST /user/addresses", s.handleAddAddress)
	app.HandleFunc("GET /user/payment-methods", s.handleListPaymentMethods)
	app.HandleFunc("POST /user/payment-methods", s.handleAddPaymentMethod)

	app.HandleFunc("POST /cart/{productID}", s.handleCartAdd)
	app.HandleFunc("GET /cart/{$}", s.handleCartList)
	app.HandleFunc("PUT /cart/{lineID}", s.handleCartUpdate)
	app.HandleFunc("DELETE /cart/{lineID}", s.handleCartRemove)

	app.HandleFunc("POST /order/checkout", s.handleCheckout)
	app.HandleFunc("GET /order/{$}", s.handleOrderList)
	app.HandleFunc("GET /order/stripe_session_status", s.handleSessionStatus)
	app.HandleFunc("GET /order/admin", s.handleAdminOrderList)
	app.HandleFunc("GET /order/admin/{orderID}", s.handleAdminOrderGet)
	app.HandleFunc("PUT /order/admin/{orderID}", s.handleAdminOrderUpdate)

	app.HandleFunc("GET /products", s.handleProductList)
	app.HandleFunc("GET /products/featured", s.handleFeaturedList)
	app.HandleFunc("GET /products/{productID}", s.handleProductGet)
	app.HandleFunc("POST /products", s.handleProductCreate)
	app.HandleFunc("PUT /products/{productID}", s.handleProductUpdate)
	app.HandleFunc("DELETE /products/{productID}", s.handleProductDelete)
	app.HandleFunc("POST /products/{productID}/feature", s.handleProductFeature)
	app.HandleFunc("DELETE /products/{productID}/feature", s.handleProductUnfeature)
	app.HandleFunc("POST /products/{productID}/images", s.handleImageAdd)
	app.HandleFunc("DELETE /products/images/{imageID}", s.handleImageDelete)

	app.HandleFunc("GET /categories", s.handleCategoryList)
	app.HandleFunc("POST /categories", s.handleCategoryCreate)
	app.HandleFunc("DELETE /categories/{categoryID}", s.handleCategoryDelete)

	app.HandleFunc("GET /admin/dashboard", s.handleDashboard)
	app.HandleFunc("GET /admin/products", s.handleAdminProductList)
	app.HandleFunc("GET /admin/users", s.handleAdminUserList)

	root := http.NewServeMux()
	root.HandleFunc("POST /order/webhook", s.handleWebhook)
	root.Handle("/", requireCSRF(app))

	return s.authenticate(root)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
