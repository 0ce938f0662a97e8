package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-backoffice/internal/domain/product"
	"github.com/xenking/storefront-backoffice/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		force        bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file, optionally gzip-compressed (.gz)")
	flag.BoolVar(&force, "force", false, "seed even when the catalog already has products")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, productsFile, force); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile string, force bool) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)
	if !force {
		existing, err := repo.List(ctx)
		if err != nil {
			return errors.Wrap(err, "list products")
		}
		if len(existing) > 0 {
			lg.Info("Catalog already seeded, skipping", zap.Int("products", len(existing)))
			return nil
		}
	}

	products, err := readProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}
	lg.Info("Loading products", zap.String("path", productsFile), zap.Int("count", len(products)))

	n, err := repo.Seed(ctx, products)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	lg.Info("Products loaded", zap.Int64("rows", n))
	return nil
}

func readProducts(path string) ([]product.Product, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return decodeProducts(jx.Decode(r, 64*1024))
}

// decodeProducts reads an array of
// {"name","price","description","imageUrl","stock"} objects.
func decodeProducts(d *jx.Decoder) ([]product.Product, error) {
	var out []product.Product
	err := d.Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "name":
				v, err := d.Str()
				p.Name = v
				return err
			case "price":
				n, err := d.Num()
				if err != nil {
					return err
				}
				p.Price, err = decimal.NewFromString(n.String())
				return err
			case "description":
				v, err := d.Str()
				p.Description = v
				return err
			case "imageUrl":
				v, err := d.Str()
				p.ImageURL = v
				return err
			case "stock":
				v, err := d.Int()
				p.Stock = v
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return errors.Wrapf(err, "product %d", len(out))
		}
		if p.Name == "" {
			return errors.Errorf("product %d: name is required", len(out))
		}
		if p.Price.IsNegative() || p.Stock < 0 {
			return errors.Errorf("product %d (%s): price and stock must not be negative", len(out), p.Name)
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
