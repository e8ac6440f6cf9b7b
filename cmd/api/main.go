// cmd/api/main.go
package main

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	accountsServiceURL, _ := url.Parse(getEnv("ACCOUNTS_SERVICE_URL", "http://localhost:8083"))
	loyaltyServiceURL, _ := url.Parse(getEnv("LOYALTY_SERVICE_URL", "http://localhost:8084"))
	purchasesServiceURL, _ := url.Parse(getEnv("PURCHASES_SERVICE_URL", "http://localhost:8085"))

	accountsProxy := httputil.NewSingleHostReverseProxy(accountsServiceURL)
	loyaltyProxy := httputil.NewSingleHostReverseProxy(loyaltyServiceURL)
	purchasesProxy := httputil.NewSingleHostReverseProxy(purchasesServiceURL)

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	// The accounts and purchases services already route under their resource
	// nouns, so only the /api/v1 prefix is stripped for them.
	router.Mount("/api/v1/accounts", http.StripPrefix("/api/v1", accountsProxy))
	router.Mount("/api/v1/login", http.StripPrefix("/api/v1", accountsProxy))
	router.Mount("/api/v1/loyalty", http.StripPrefix("/api/v1/loyalty", loyaltyProxy))
	router.Mount("/api/v1/purchases", http.StripPrefix("/api/v1", purchasesProxy))

	port := getEnv("PORT", "8080")
	log.Printf("API Gateway listening on port %s", port)
	log.Fatal(http.ListenAndServe(":"+port, router))
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
