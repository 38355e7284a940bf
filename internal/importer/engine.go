package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vrsandeep/catalog-importer/internal/images"
	"github.com/vrsandeep/catalog-importer/internal/mapping"
	"github.com/vrsandeep/catalog-importer/internal/models"
	"github.com/vrsandeep/catalog-importer/internal/pricing"
	"github.com/vrsandeep/catalog-importer/internal/store"
)

// ErrParse marks input that could not be read: the spreadsheet, the
// archive, or a single cell.
var ErrParse = errors.New("parse error")

// Catalog is the catalog store as seen by the engine.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) (int64, error)
	UpdateProductText(ctx context.Context, id int64, name, description models.LocalizedText) error
	SetProductBrand(ctx context.Context, productID, brandID int64) error
	PrimaryVariant(ctx context.Context, productID int64) (*models.Variant, error)
	CreateVariant(ctx context.Context, v *models.Variant) (int64, error)
	UpdateVariantSKU(ctx context.Context, variantID int64, sku string) error
	UpdateVariantStock(ctx context.Context, variantID, stock int64) error
	UpdateVariantMinQuantity(ctx context.Context, variantID, minQuantity int64) error
	FirstPrice(ctx context.Context, variantID int64) (*models.Price, error)
	CreatePrice(ctx context.Context, p *models.Price) (int64, error)
	UpdatePriceAmount(ctx context.Context, priceID, amount int64) error
	FindOrCreateBrand(ctx context.Context, name string) (int64, error)
	NextCollectionPosition(ctx context.Context, collectionID int64) (int64, error)
	AttachToCollection(ctx context.Context, collectionID, productID, position int64) error
	UpsertFilterValue(ctx context.Context, filterID, productID int64, value string) error
}

type ImageSource interface {
	Resolve(ctx context.Context, dir, name string) (*images.Resolved, error)
}

type ImageAttacher interface {
	Attach(ctx context.Context, productID int64, img *images.Resolved) (*models.Media, error)
}

// RowError is a failure confined to one spreadsheet row. The run goes on
// with the next row.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }
func (e *RowError) Unwrap() error { return e.Err }

func rowErrorf(row int, format string, args ...any) *RowError {
	return &RowError{Row: row, Err: fmt.Errorf(format, args...)}
}

// Summary counts what a run did with its rows.
type Summary struct {
	Created    int
	Updated    int
	Skipped    int
	Failed     int
	FirstError *RowError
}

func (s *Summary) fail(err *RowError) {
	s.Failed++
	if s.FirstError == nil {
		s.FirstError = err
	}
}

// Message is the final progress text. done is the plain success message.
func (s Summary) Message(done string) string {
	if s.Failed == 0 {
		return done
	}
	noun := "errors"
	if s.Failed == 1 {
		noun = "error"
	}
	return fmt.Sprintf("%s with %d row %s (first: %v)", done, s.Failed, noun, s.FirstError)
}

// RowProcessor handles the projected rows of one run in sheet order.
type RowProcessor interface {
	Process(ctx context.Context, row int, fs mapping.RowFieldSet) error
	Summary() Summary
}

// EngineConfig carries everything a catalog run needs, resolved before
// the first row.
type EngineConfig struct {
	Catalog       Catalog
	Images        ImageSource
	Attacher      ImageAttacher
	ImageDir      string
	CollectionID  *int64
	Locales       []string
	CurrencyID    int64
	ProductTypeID int64
	ReclaimEvery  int
	Reclaim       func()
	Log           *logrus.Entry
}

// Engine reconciles catalog rows against existing products.
type Engine struct {
	cfg          EngineConfig
	nextPosition int64
	summary      Summary
}

func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Engine{cfg: cfg}
	if cfg.CollectionID != nil {
		pos, err := cfg.Catalog.NextCollectionPosition(ctx, *cfg.CollectionID)
		if err != nil {
			return nil, fmt.Errorf("read collection position: %w", err)
		}
		e.nextPosition = pos
	}
	return e, nil
}

func (e *Engine) Summary() Summary { return e.summary }

// Process reconciles one row. Row level problems are counted and logged;
// only store failures that are not about the row's data are returned.
func (e *Engine) Process(ctx context.Context, row int, fs mapping.RowFieldSet) error {
	defer e.maybeReclaim(row)

	if fs.Empty() {
		e.summary.Skipped++
		return nil
	}
	err := e.reconcile(ctx, row, fs)
	var rowErr *RowError
	if errors.As(err, &rowErr) {
		e.cfg.Log.WithField("row", row).WithError(rowErr.Err).Warn("Skipping rest of row")
		e.summary.fail(rowErr)
		return nil
	}
	return err
}

func (e *Engine) maybeReclaim(row int) {
	if e.cfg.Reclaim != nil && e.cfg.ReclaimEvery > 0 && row%e.cfg.ReclaimEvery == 0 {
		e.cfg.Reclaim()
	}
}

// rowValues are the numeric cells of a row, parsed before any write so a
// bad number leaves the catalog untouched.
type rowValues struct {
	price       int64
	hasPrice    bool
	stock       int64
	hasStock    bool
	minStock    int64
	hasMinStock bool
}

func parseRowValues(row int, fs mapping.RowFieldSet) (rowValues, error) {
	var v rowValues
	if raw, ok := fs.Get(mapping.TagPrice); ok {
		cents, ok := pricing.ParseMinorUnits(raw)
		if !ok {
			return v, rowErrorf(row, "%w: price %q", ErrParse, raw)
		}
		v.price, v.hasPrice = cents, true
	}
	if raw, ok := fs.Get(mapping.TagStock); ok {
		n, ok := pricing.ParseQuantity(raw)
		if !ok {
			return v, rowErrorf(row, "%w: stock %q", ErrParse, raw)
		}
		v.stock, v.hasStock = n, true
	}
	if raw, ok := fs.Get(mapping.TagMinStock); ok {
		n, ok := pricing.ParseQuantity(raw)
		if !ok {
			return v, rowErrorf(row, "%w: min stock %q", ErrParse, raw)
		}
		// Zero means unset on both paths: new variants keep min quantity 1
		// and updates leave the current value alone.
		v.minStock, v.hasMinStock = n, n != 0
	}
	return v, nil
}

func (e *Engine) reconcile(ctx context.Context, row int, fs mapping.RowFieldSet) error {
	values, err := parseRowValues(row, fs)
	if err != nil {
		return err
	}

	product, err := e.match(ctx, fs)
	if err != nil {
		return e.storeErr(row, "find product", err)
	}

	log := e.cfg.Log.WithField("row", row)
	if product == nil {
		productID, err := e.create(ctx, row, fs, values)
		if err != nil {
			return err
		}
		e.summary.Created++
		log = log.WithField("product_id", productID)
		log.Debug("Created product")
		product = &models.Product{ID: productID}
	} else {
		if err := e.update(ctx, row, product.ID, fs, values); err != nil {
			return err
		}
		e.summary.Updated++
		log.WithField("product_id", product.ID).Debug("Updated product")
	}

	if brand, ok := fs.Get(mapping.TagBrand); ok {
		brandID, err := e.cfg.Catalog.FindOrCreateBrand(ctx, brand)
		if err != nil {
			return e.storeErr(row, "brand", err)
		}
		if err := e.cfg.Catalog.SetProductBrand(ctx, product.ID, brandID); err != nil {
			return e.storeErr(row, "brand", err)
		}
	}

	for _, fv := range fs.FilterValues() {
		if err := e.cfg.Catalog.UpsertFilterValue(ctx, fv.FilterID, product.ID, fv.Value); err != nil {
			return e.storeErr(row, fmt.Sprintf("filter %d", fv.FilterID), err)
		}
	}

	for _, name := range fs.Images {
		e.attachImage(ctx, log, product.ID, name)
	}
	return nil
}

// match finds the product named by the row's id cell. Ids that are not
// numbers or point at nothing mean the row creates a product.
func (e *Engine) match(ctx context.Context, fs mapping.RowFieldSet) (*models.Product, error) {
	raw, ok := fs.Get(mapping.TagID)
	if !ok {
		return nil, nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return nil, nil
	}
	p, err := e.cfg.Catalog.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (e *Engine) localizedText(fs mapping.RowFieldSet) (name, description models.LocalizedText) {
	name = make(models.LocalizedText, len(e.cfg.Locales))
	description = make(models.LocalizedText, len(e.cfg.Locales))
	for _, loc := range e.cfg.Locales {
		name[loc], _ = fs.Get(mapping.NameTag(loc))
		description[loc], _ = fs.Get(mapping.DescriptionTag(loc))
	}
	return name, description
}

func (e *Engine) textTags() []mapping.Tag {
	tags := make([]mapping.Tag, 0, 2*len(e.cfg.Locales))
	for _, loc := range e.cfg.Locales {
		tags = append(tags, mapping.NameTag(loc), mapping.DescriptionTag(loc))
	}
	return tags
}

func placeholderSKU() string {
	return "SKU-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:13])
}

func (e *Engine) create(ctx context.Context, row int, fs mapping.RowFieldSet, v rowValues) (int64, error) {
	c := e.cfg.Catalog
	name, description := e.localizedText(fs)
	p := &models.Product{
		ProductTypeID: e.cfg.ProductTypeID,
		Status:        models.ProductStatusPublished,
		Name:          name,
		Description:   description,
	}
	productID, err := c.CreateProduct(ctx, p)
	if err != nil {
		return 0, e.storeErr(row, "create product", err)
	}

	if e.cfg.CollectionID != nil {
		if err := c.AttachToCollection(ctx, *e.cfg.CollectionID, productID, e.nextPosition); err != nil {
			return 0, e.storeErr(row, "attach to collection", err)
		}
		e.nextPosition++
	}

	sku, ok := fs.Get(mapping.TagSKU)
	if !ok {
		sku = placeholderSKU()
	}
	variant := &models.Variant{ProductID: productID, SKU: sku, Stock: v.stock, MinQuantity: 1}
	if v.hasMinStock {
		variant.MinQuantity = v.minStock
	}
	variantID, err := c.CreateVariant(ctx, variant)
	if err != nil {
		return 0, e.storeErr(row, "create variant", err)
	}

	price := &models.Price{VariantID: variantID, CurrencyID: e.cfg.CurrencyID, Amount: v.price, MinQuantity: 1}
	if _, err := c.CreatePrice(ctx, price); err != nil {
		return 0, e.storeErr(row, "create price", err)
	}
	return productID, nil
}

// update writes each present field on its own so that whatever was
// written before a failure stays written.
func (e *Engine) update(ctx context.Context, row int, productID int64, fs mapping.RowFieldSet, v rowValues) error {
	c := e.cfg.Catalog
	if fs.HasAny(e.textTags()...) {
		name, description := e.localizedText(fs)
		if err := c.UpdateProductText(ctx, productID, name, description); err != nil {
			return e.storeErr(row, "update text", err)
		}
	}

	sku, hasSKU := fs.Get(mapping.TagSKU)
	if !hasSKU && !v.hasPrice && !v.hasStock && !v.hasMinStock {
		return nil
	}

	variant, err := c.PrimaryVariant(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		if !hasSKU {
			sku = placeholderSKU()
		}
		variant = &models.Variant{ProductID: productID, SKU: sku, MinQuantity: 1}
		if variant.ID, err = c.CreateVariant(ctx, variant); err != nil {
			return e.storeErr(row, "create variant", err)
		}
	} else if err != nil {
		return e.storeErr(row, "find variant", err)
	} else if hasSKU {
		if err := c.UpdateVariantSKU(ctx, variant.ID, sku); err != nil {
			return e.storeErr(row, "update sku", err)
		}
	}

	if v.hasPrice {
		price, err := c.FirstPrice(ctx, variant.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			_, err = c.CreatePrice(ctx, &models.Price{VariantID: variant.ID, CurrencyID: e.cfg.CurrencyID, Amount: v.price, MinQuantity: 1})
		case err == nil:
			err = c.UpdatePriceAmount(ctx, price.ID, v.price)
		}
		if err != nil {
			return e.storeErr(row, "update price", err)
		}
	}
	if v.hasStock {
		if err := c.UpdateVariantStock(ctx, variant.ID, v.stock); err != nil {
			return e.storeErr(row, "update stock", err)
		}
	}
	if v.hasMinStock {
		if err := c.UpdateVariantMinQuantity(ctx, variant.ID, v.minStock); err != nil {
			return e.storeErr(row, "update min stock", err)
		}
	}
	return nil
}

func (e *Engine) attachImage(ctx context.Context, log *logrus.Entry, productID int64, name string) {
	if e.cfg.Images == nil || e.cfg.Attacher == nil {
		return
	}
	log = log.WithField("image", name)
	img, err := e.cfg.Images.Resolve(ctx, e.cfg.ImageDir, name)
	if err != nil {
		log.WithError(err).Warn("Could not resolve image")
		return
	}
	if img == nil {
		log.Debug("Image not found")
		return
	}
	defer img.Release()
	if _, err := e.cfg.Attacher.Attach(ctx, productID, img); err != nil {
		log.WithError(err).Warn("Could not attach image")
	}
}

// storeErr turns constraint violations into row errors. Anything else
// means the store itself is failing and ends the run.
func (e *Engine) storeErr(row int, what string, err error) error {
	if store.IsConstraint(err) {
		return rowErrorf(row, "%s: %w", what, err)
	}
	return fmt.Errorf("row %d: %s: %w", row, what, err)
}

// StockCatalog is the store as seen by the stock-only path.
type StockCatalog interface {
	UpdateStockBySKU(ctx context.Context, sku string, stock int64) (bool, error)
}

// StockEngine overwrites the stock of variants matched by SKU. It never
// creates anything.
type StockEngine struct {
	catalog      StockCatalog
	reclaimEvery int
	reclaim      func()
	log          *logrus.Entry
	summary      Summary
}

func NewStockEngine(catalog StockCatalog, reclaimEvery int, reclaim func(), log *logrus.Entry) *StockEngine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StockEngine{catalog: catalog, reclaimEvery: reclaimEvery, reclaim: reclaim, log: log}
}

func (e *StockEngine) Summary() Summary { return e.summary }

func (e *StockEngine) Process(ctx context.Context, row int, fs mapping.RowFieldSet) error {
	if e.reclaim != nil && e.reclaimEvery > 0 && row%e.reclaimEvery == 0 {
		defer e.reclaim()
	}
	sku, hasSKU := fs.Get(mapping.TagSKU)
	raw, hasStock := fs.Get(mapping.TagStock)
	if !hasSKU || !hasStock {
		e.summary.Skipped++
		return nil
	}
	stock, ok := pricing.ParseQuantity(raw)
	if !ok {
		rowErr := rowErrorf(row, "%w: stock %q", ErrParse, raw)
		e.log.WithField("row", row).WithError(rowErr.Err).Warn("Skipping row")
		e.summary.fail(rowErr)
		return nil
	}
	found, err := e.catalog.UpdateStockBySKU(ctx, sku, stock)
	if err != nil {
		return fmt.Errorf("row %d: update stock: %w", row, err)
	}
	if !found {
		e.log.WithFields(logrus.Fields{"row": row, "sku": sku}).Debug("No variant with sku")
		e.summary.Skipped++
		return nil
	}
	e.summary.Updated++
	return nil
}
