package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/Luzifer/rconfig/v2"

	"github.com/hxloris/s3resolver/pkg/objectstore"
	"github.com/hxloris/s3resolver/pkg/objectstore/gcs"
	"github.com/hxloris/s3resolver/pkg/objectstore/s3"
	"github.com/hxloris/s3resolver/pkg/resolver"
)

var (
	cfg = struct {
		BucketMapFile  string `flag:"bucket-map" default:"" description:"YAML file mapping identifier prefixes to buckets"`
		CacheRoot      string `flag:"cache-root" default:"" description:"Absolute directory to cache source images beneath"`
		DefaultFormat  string `flag:"default-format" default:"" description:"Force this output format instead of the detected one"`
		IdentRegex     string `flag:"ident-regex" default:"" description:"Only resolve identifiers matching this pattern"`
		Listen         string `flag:"listen" default:":3000" description:"Port/IP to listen on"`
		LogLevel       string `flag:"log-level" default:"info" description:"Log level (debug, info, warn, error, fatal)"`
		RulesExt       string `flag:"rules-ext" default:"rules" description:"Extension of the sidecar access rules objects"`
		S3AccessKey    string `flag:"s3-access-key" default:"" description:"Access key for the S3 endpoint"`
		S3Endpoint     string `flag:"s3-endpoint" default:"" description:"S3 endpoint to fetch source images from (empty switches to GCS)"`
		S3SecretKey    string `flag:"s3-secret-key" default:"" description:"Secret key for the S3 endpoint"`
		S3UseSSL       bool   `flag:"s3-use-ssl" default:"true" description:"Use HTTPS to talk to the S3 endpoint"`
		VersionAndExit bool   `flag:"version" default:"false" description:"Prints current version and exits"`
	}{}

	res *resolver.Resolver

	version = "dev"
)

func init() {
	rconfig.AutoEnv(true)
	if err := rconfig.ParseAndValidate(&cfg); err != nil {
		log.Fatalf("Unable to parse commandline options: %s", err)
	}

	if cfg.VersionAndExit {
		fmt.Printf("s3resolver %s\n", version)
		os.Exit(0)
	}

	if l, err := log.ParseLevel(cfg.LogLevel); err != nil {
		log.WithError(err).Fatal("Unable to parse log level")
	} else {
		log.SetLevel(l)
	}
}

func main() {
	store, err := newStore()
	if err != nil {
		log.WithError(err).Fatal("Unable to create object store client")
	}

	bucketMap, err := resolver.LoadBucketMap(cfg.BucketMapFile)
	if err != nil {
		log.WithError(err).Fatal("Unable to load bucket map")
	}

	if res, err = resolver.New(resolver.Config{
		CacheRoot:     cfg.CacheRoot,
		BucketMap:     bucketMap,
		DefaultFormat: cfg.DefaultFormat,
		IdentRegex:    cfg.IdentRegex,
		AuthRulesExt:  cfg.RulesExt,
	}, store, log.StandardLogger()); err != nil {
		log.WithError(err).Fatal("Unable to create resolver")
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.PathPrefix("/").HandlerFunc(handleImage)

	r.SkipClean(true)

	http.ListenAndServe(cfg.Listen, r)
}

func newStore() (objectstore.Store, error) {
	if cfg.S3Endpoint == "" {
		return gcs.New(context.Background())
	}

	return s3.New(s3.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
	})
}

func handleImage(w http.ResponseWriter, r *http.Request) {
	var (
		ident  = strings.TrimPrefix(r.RequestURI, "/")
		logger = log.WithField("ident", ident)
	)

	logger.Debug("Received request")

	if r.Method == http.MethodHead {
		if !res.IsResolvable(r.Context(), ident) {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	desc, err := res.Resolve(r.Context(), ident, r.Host)
	switch {
	case err == nil:
		// This is fine

	case errors.Is(err, resolver.ErrInvalidIdentifier):
		http.Error(w, "Unable to parse requested identifier", http.StatusBadRequest)
		return

	case errors.Is(err, resolver.ErrRemoteNotFound):
		http.NotFound(w, r)
		return

	default:
		logger.WithError(err).Error("Unable to resolve identifier")
		http.Error(w, "Unable to resolve identifier", http.StatusBadGateway)
		return
	}

	w.Header().Set("X-Image-Format", desc.Format)
	http.ServeFile(w, r, desc.LocalPath)
}
