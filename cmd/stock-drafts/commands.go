package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/farmacia/farmacia-backend/internal/drafts"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

const usage = `usage: stock-drafts <command> [flags]

commands:
  list                                   print every draft
  add     --supplier --product --cantidad [--supplier-name --product-name --costo --notas]
  update  --supplier --product [--cantidad --costo --clear-costo --notas]
  remove  --supplier --product
  clear   [--supplier]                   discard one draft, or all of them
  confirm --supplier [--notas]           submit the draft as a purchase order
`

func run(ctx context.Context, r *drafts.Reconciler, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return fmt.Errorf("missing command")
	}

	cmd, args := args[0], args[1:]
	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	fs.SetOutput(out)

	supplier := fs.String("supplier", "", "supplier id")
	product := fs.String("product", "", "product id")

	switch cmd {
	case "list":
		if err := fs.Parse(args); err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(drafts.State{Drafts: r.Drafts()})

	case "add":
		supplierName := fs.String("supplier-name", "", "supplier display name")
		productName := fs.String("product-name", "", "product display name")
		cantidad := fs.Int("cantidad", 0, "quantity to order")
		costo := fs.String("costo", "", "unit cost")
		notas := fs.String("notas", "", "line notes")
		if err := fs.Parse(args); err != nil {
			return err
		}

		item := drafts.DraftItem{ProductID: *product, ProductName: *productName, Cantidad: *cantidad}
		if fs.Changed("costo") {
			d, err := decimal.NewFromString(*costo)
			if err != nil {
				return fmt.Errorf("invalid --costo %q: %w", *costo, err)
			}
			item.CostoUnitario = &d
		}
		if fs.Changed("notas") {
			item.Notas = notas
		}
		if err := r.AddItem(ctx, *supplier, *supplierName, item); err != nil {
			return err
		}
		return printDraft(out, r, *supplier)

	case "update":
		cantidad := fs.Int("cantidad", 0, "new quantity")
		costo := fs.String("costo", "", "new unit cost")
		clearCosto := fs.Bool("clear-costo", false, "forget the unit cost")
		notas := fs.String("notas", "", "new line notes")
		if err := fs.Parse(args); err != nil {
			return err
		}

		var ch drafts.ItemChanges
		if fs.Changed("cantidad") {
			ch.Cantidad = cantidad
		}
		if fs.Changed("costo") {
			d, err := decimal.NewFromString(*costo)
			if err != nil {
				return fmt.Errorf("invalid --costo %q: %w", *costo, err)
			}
			ch.CostoUnitario = &d
		}
		ch.ClearCosto = *clearCosto
		if fs.Changed("notas") {
			ch.Notas = notas
		}
		if err := r.UpdateItem(ctx, *supplier, *product, ch); err != nil {
			return err
		}
		return printDraft(out, r, *supplier)

	case "remove":
		if err := fs.Parse(args); err != nil {
			return err
		}
		return r.RemoveItem(ctx, *supplier, *product)

	case "clear":
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *supplier == "" {
			return r.ClearAll(ctx)
		}
		return r.ClearProveedor(ctx, *supplier)

	case "confirm":
		notas := fs.String("notas", "", "order notes")
		if err := fs.Parse(args); err != nil {
			return err
		}

		var orderNotas *string
		if fs.Changed("notas") {
			orderNotas = notas
		}
		order, err := r.ConfirmDraft(ctx, *supplier, orderNotas)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "order %s created (%s, %d items, total %s)\n",
			order.ID, order.Estado, len(order.Items), order.TotalEstimado.StringFixed(2))
		return nil

	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printDraft(out io.Writer, r *drafts.Reconciler, supplierID string) error {
	draft, ok := r.Draft(supplierID)
	if !ok {
		return nil
	}
	total := draft.EstimatedTotal()
	fmt.Fprintf(out, "%s: %d items, estimated %s\n", draft.SupplierID, len(draft.Items), total.StringFixed(2))
	return nil
}
