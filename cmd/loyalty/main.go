// cmd/loyalty/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"autosphere/internal/clients"
	"autosphere/internal/loyalty"
	"autosphere/pkg/telemetry"
)

func main() {
	ctx := context.Background()

	shutdown, err := telemetry.Init(ctx, "autosphere-loyalty")
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer shutdown(ctx)

	accountsServiceURL := os.Getenv("ACCOUNTS_SERVICE_URL")
	if accountsServiceURL == "" {
		accountsServiceURL = "http://localhost:8083"
	}

	accountsClient := clients.NewAccountsClient(accountsServiceURL)
	svc := loyalty.NewService(accountsClient)
	handler := loyalty.NewHandler(svc)

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Mount("/", handler.Routes())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8084"
	}

	fmt.Printf("🚀 Starting Loyalty Service on port %s\n", port)
	log.Fatal(http.ListenAndServe(":"+port, router))
}
