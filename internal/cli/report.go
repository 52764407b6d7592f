package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// report is the printable outcome of one pricing run.
type report struct {
	Name            string                     `json:"name,omitempty"`
	ProductID       string                     `json:"productId"`
	ModificationID  string                     `json:"modificationId,omitempty"`
	PriceTypeID     string                     `json:"priceTypeId"`
	UsedDefaultTier bool                       `json:"usedDefaultPriceType"`
	BasePrice       decimal.Decimal            `json:"basePrice"`
	OldPrice        decimal.NullDecimal        `json:"oldPrice"`
	FinalPrice      decimal.Decimal            `json:"finalPrice"`
	TotalDiscount   decimal.Decimal            `json:"totalDiscount"`
	Applied         []domain.AppliedDiscount   `json:"applied"`
	Rejected        []domain.RejectedDiscount  `json:"rejected"`
	Warnings        []domain.EvaluationWarning `json:"warnings"`
	Steps           []string                   `json:"steps"`
}

type moneyFormatter struct {
	symbol    string
	precision int32
	printer   *message.Printer
}

func newMoneyFormatter(code, locale string, precision int32) (moneyFormatter, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "UAH"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return moneyFormatter{}, fmt.Errorf("currency %q: %w", code, err)
	}
	tag := language.English
	if strings.TrimSpace(locale) != "" {
		if tag, err = language.Parse(locale); err != nil {
			return moneyFormatter{}, fmt.Errorf("locale %q: %w", locale, err)
		}
	}
	printer := message.NewPrinter(tag)
	return moneyFormatter{
		symbol:    printer.Sprint(currency.Symbol(unit)),
		precision: precision,
		printer:   printer,
	}, nil
}

func (m moneyFormatter) format(d decimal.Decimal) string {
	return m.printer.Sprintf("%s %s", m.symbol, d.StringFixed(m.precision))
}

func writeReport(w io.Writer, format string, r report, money moneyFormatter) error {
	switch format {
	case formatJSON:
		if r.Applied == nil {
			r.Applied = []domain.AppliedDiscount{}
		}
		if r.Rejected == nil {
			r.Rejected = []domain.RejectedDiscount{}
		}
		if r.Warnings == nil {
			r.Warnings = []domain.EvaluationWarning{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case formatTable, "":
		return writeTable(w, r, money)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeTable(w io.Writer, r report, money moneyFormatter) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if r.Name != "" {
		fmt.Fprintf(tw, "scenario\t%s\n", r.Name)
	}
	fmt.Fprintf(tw, "product\t%s\n", r.ProductID)
	if r.ModificationID != "" {
		fmt.Fprintf(tw, "modification\t%s\n", r.ModificationID)
	}
	tier := r.PriceTypeID
	if r.UsedDefaultTier {
		tier += " (default)"
	}
	fmt.Fprintf(tw, "price type\t%s\n", tier)
	fmt.Fprintf(tw, "base price\t%s\n", money.format(r.BasePrice))
	if r.OldPrice.Valid {
		fmt.Fprintf(tw, "old price\t%s\n", money.format(r.OldPrice.Decimal))
	}
	fmt.Fprintf(tw, "discount\t%s\n", money.format(r.TotalDiscount))
	fmt.Fprintf(tw, "final price\t%s\n", money.format(r.FinalPrice))

	if len(r.Applied) > 0 {
		fmt.Fprintln(tw, "\nAPPLIED\tGROUP\tTYPE\tVALUE\tAMOUNT")
		for _, a := range r.Applied {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", label(a.DiscountID, a.Name), label(a.GroupID, a.GroupName), a.Type, a.Value.String(), money.format(a.CalculatedAmount))
		}
	}
	if len(r.Rejected) > 0 {
		fmt.Fprintln(tw, "\nREJECTED\tGROUP\tREASON")
		for _, rj := range r.Rejected {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", label(rj.DiscountID, rj.Name), label(rj.GroupID, rj.GroupName), rj.Reason)
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(tw, "\nWARNING\tGROUP\tDISCOUNT\tMESSAGE")
		for _, wn := range r.Warnings {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", wn.Code, dash(wn.GroupID), dash(wn.DiscountID), wn.Message)
		}
	}
	if len(r.Steps) > 0 {
		fmt.Fprintln(tw, "\nSTEPS")
		for i, s := range r.Steps {
			fmt.Fprintf(tw, "%d.\t%s\n", i+1, s)
		}
	}
	return tw.Flush()
}

func label(id, name string) string {
	if name == "" {
		return dash(id)
	}
	return fmt.Sprintf("%s (%s)", id, name)
}

func dash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
