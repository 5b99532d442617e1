// Command ingest classifies, validates, normalizes and lands tabular files.
//
// Usage:
//
//	ingest classify data/sales_orders.csv
//	ingest validate --schema orders.schema.json data/sales_orders.csv
//	ingest normalize --mode drop_invalid --out clean.csv data/sales_orders.csv
//	ingest reconcile a.schema.json b.schema.json --dialect postgres --table icg_sales_orders_dev
//	ingest run --config ingest.yaml data/*.csv https://example.com/crm_contacts.json
//	ingest serve --config ingest.yaml
package main

import (
	"os"

	// Register every storage backend; the config picks one.
	_ "ingest/internal/storage/all"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
