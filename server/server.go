package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Server routes item CRUD requests to the table store and blob store.
// The storage clients are created once at startup and shared read-only
// across requests.
type Server struct {
	config    *Config
	store     TableStore
	blobStore BlobStore
	cache     Cache

	httpSrv      *http.Server
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewServer creates a new server, provisioning the table and bucket if
// they do not exist yet. Any provisioning failure aborts startup.
func NewServer(config *Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var store TableStore
	var err error
	switch config.TableStore {
	case "", "dynamodb":
		store, err = NewDynamoDBStore(
			config.AWS.Region,
			config.AWS.DynamoDB.Endpoint,
			config.AWS.DynamoDB.TableName,
		)
	case "documentdb":
		store, err = NewDocumentDBStore(
			config.AWS.Region,
			config.AWS.DocumentDB.ConnectionString,
			config.AWS.DocumentDB.PasswordSecretArn,
			config.AWS.DocumentDB.DatabaseName,
		)
	default:
		err = fmt.Errorf("unknown table store backend: %s", config.TableStore)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create table store: %w", err)
	}

	if err := store.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure table: %w", err)
	}

	blobStore, err := NewS3BlobStore(
		config.AWS.Region,
		config.AWS.S3.Endpoint,
		config.AWS.S3.BucketName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 blob store: %w", err)
	}

	if err := blobStore.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}

	// Use the Redis cache when configured, NoOpCache otherwise
	var cache Cache = &NoOpCache{}
	if config.AWS.ElastiCache.Address != "" {
		cacheCtx, cacheCancel := context.WithTimeout(ctx, 3*time.Second)
		defer cacheCancel()

		redisCache, err := NewRedisCache(cacheCtx, config.AWS.ElastiCache.Address, config.AWS.ElastiCache.TTL)
		if err != nil {
			log.Printf("Warning: Failed to create Redis cache: %v. Continuing with NoOpCache.", err)
		} else {
			cache = redisCache
			log.Printf("Connected to Redis cache at %s", config.AWS.ElastiCache.Address)
		}
	}

	return &Server{
		config:     config,
		store:      store,
		blobStore:  blobStore,
		cache:      cache,
		shutdownCh: make(chan struct{}),
	}, nil
}

// Handler returns the HTTP handler with all routes registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/item", s.handleItem)
	mux.HandleFunc("/item/", s.handleItemByID)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/shutdown", s.handleShutdown)
	return mux
}

// Start starts the HTTP server and blocks until it is shut down
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Server.HTTPPort)
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		<-s.shutdownCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			log.Printf("HTTP server shutdown: %v", err)
		}
	}()

	log.Printf("HTTP server listening on %s", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop triggers a graceful shutdown
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
		if closer, ok := s.cache.(interface{ Close() error }); ok {
			closer.Close()
		}
	})
}

// handleItem handles POST and PUT requests on /item
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var item Item
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if item.ID() == "" {
			writeError(w, http.StatusBadRequest, "Item ID not provided")
			return
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.createItem(ctx, w, item)
	case http.MethodPut:
		s.updateItem(ctx, w, item)
	}
}

// createItem writes a new item to the table store and mirrors it to the
// blob store. The conditional table write detects duplicates atomically;
// a failed blob write is compensated by deleting the table row so the
// stores do not diverge on partial failure.
func (s *Server) createItem(ctx context.Context, w http.ResponseWriter, item Item) {
	if err := s.store.CreateItem(ctx, item); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "Item already exists")
			return
		}
		log.Printf("Failed to create item %s: %v", item.ID(), err)
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}

	data, err := json.Marshal(item)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.blobStore.Put(ctx, item.ID(), data); err != nil {
		log.Printf("Failed to write blob for item %s: %v", item.ID(), err)
		if derr := s.store.DeleteItem(ctx, item.ID()); derr != nil {
			log.Printf("Failed to roll back table write for item %s, stores have diverged: %v", item.ID(), derr)
		}
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}

	s.invalidateCache(ctx, item.ID())
	writeMessage(w, http.StatusCreated, "Item created")
}

// updateItem overwrites an existing item in both stores
func (s *Server) updateItem(ctx context.Context, w http.ResponseWriter, item Item) {
	if _, err := s.store.GetItem(ctx, item.ID()); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Item not found")
			return
		}
		log.Printf("Failed to get item %s: %v", item.ID(), err)
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}

	if err := s.store.PutItem(ctx, item); err != nil {
		log.Printf("Failed to update item %s: %v", item.ID(), err)
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}

	data, err := json.Marshal(item)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.blobStore.Put(ctx, item.ID(), data); err != nil {
		// The table row holds the new value while the blob still holds
		// the old one; surface the failure rather than masking it.
		log.Printf("Blob write failed for item %s, table and blob stores have diverged: %v", item.ID(), err)
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}

	s.invalidateCache(ctx, item.ID())
	writeMessage(w, http.StatusOK, "Item updated")
}

// handleItemByID handles GET and DELETE requests on /item/{id}
func (s *Server) handleItemByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := strings.TrimPrefix(r.URL.Path, "/item/")
	if strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "Item ID not provided")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getItem(ctx, w, id)
	case http.MethodDelete:
		s.deleteItem(ctx, w, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// getItem serves an item from the cache or the table store
func (s *Server) getItem(ctx context.Context, w http.ResponseWriter, id string) {
	if item, err := s.cache.GetItem(ctx, id); err == nil {
		writeJSON(w, http.StatusOK, item)
		return
	}

	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Item not found")
			return
		}
		log.Printf("Failed to get item %s: %v", id, err)
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}

	if err := s.cache.SetItem(ctx, item); err != nil {
		log.Printf("Failed to cache item %s: %v", id, err)
	}

	writeJSON(w, http.StatusOK, item)
}

// deleteItem removes an item from both stores
func (s *Server) deleteItem(ctx context.Context, w http.ResponseWriter, id string) {
	if _, err := s.store.GetItem(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Item not found")
			return
		}
		log.Printf("Failed to get item %s: %v", id, err)
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}

	if err := s.store.DeleteItem(ctx, id); err != nil {
		log.Printf("Failed to delete item %s: %v", id, err)
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}

	if err := s.blobStore.Delete(ctx, id); err != nil {
		// The table row is already gone; the orphaned blob is logged
		// rather than failing a delete that did remove the item.
		log.Printf("Blob delete failed for item %s, stores have diverged: %v", id, err)
	}

	s.invalidateCache(ctx, id)
	writeMessage(w, http.StatusOK, "Item deleted")
}

// handleHealth handles the health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// handleShutdown stops the server. Kept as a test/operational hook.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeMessage(w, http.StatusOK, "Server shutting down")
	go s.Stop()
}

func (s *Server) invalidateCache(ctx context.Context, id string) {
	if err := s.cache.DeleteItem(ctx, id); err != nil {
		log.Printf("Failed to invalidate cache for item %s: %v", id, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
