package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/ingestion"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/seed"
)

// statementLine is one acquirer settlement row before it is rendered to a
// file format.
type statementLine struct {
	nsu    string
	amount decimal.Decimal
	number int
	total  int
	brand  string
	date   time.Time
}

var brands = []string{"VISA", "MASTERCARD", "ELO", "AMEX"}

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	ds := &seed.Dataset{
		BankAccounts: []domain.BankAccount{
			{ID: "acc-itau", Name: "Itau 0001/12345-6", Balance: decimal.NewFromInt(25000)},
			{ID: "acc-bradesco", Name: "Bradesco 0420/98765-1", Balance: decimal.NewFromInt(8000)},
		},
		Acquirers: []domain.Acquirer{
			{ID: "cielo", Name: "Cielo", BankAccountID: "acc-itau"},
			{ID: "rede", Name: "Rede", BankAccountID: "acc-bradesco"},
		},
	}

	// Sales happen in February 2024; installments fall due every 30 days.
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	march := domain.NewWindow(
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	)

	statements := map[string][]statementLine{}
	nsu := 500000

	for _, acq := range ds.Acquirers {
		for i := 1; i <= 40; i++ {
			nsu++
			saleID := fmt.Sprintf("VND-%s-%03d", strings.ToUpper(acq.ID), i)
			saleDate := start.AddDate(0, 0, rng.Intn(28))
			total := 1 + rng.Intn(3)
			cents := int64(5000 + rng.Intn(85000))
			brand := brands[rng.Intn(len(brands))]

			// 10% of sales never got their NSU typed into the ledger.
			ledgerNSU := fmt.Sprintf("%d", nsu)
			if rng.Float64() < 0.10 {
				ledgerNSU = ""
			}

			for n, amount := range split(cents, total) {
				number := n + 1
				due := saleDate.AddDate(0, 0, 30*number)
				ds.Installments = append(ds.Installments, seed.Installment{
					SaleID:            saleID,
					InstallmentNumber: number,
					InstallmentTotal:  total,
					ExpectedAmount:    amount,
					ExpectedDate:      due.Format("2006-01-02"),
					NSU:               ledgerNSU,
					AcquirerID:        acq.ID,
				})

				if !march.Contains(due) {
					continue
				}
				roll := rng.Float64()
				// 5% not settled yet.
				if roll > 0.95 {
					continue
				}
				settled := amount
				// 3% settled with a different gross amount.
				if roll > 0.92 {
					settled = domain.Cents(amount.Mul(decimal.NewFromFloat(0.97)))
				}
				statements[acq.ID] = append(statements[acq.ID], statementLine{
					nsu: fmt.Sprintf("%d", nsu), amount: settled,
					number: number, total: total, brand: brand, date: due,
				})
			}
		}

		// Two settlements no sale knows about.
		for k := 1; k <= 2; k++ {
			statements[acq.ID] = append(statements[acq.ID], statementLine{
				nsu: fmt.Sprintf("9%05d", k), amount: decimal.New(int64(1990*k), -2),
				number: 1, total: 1, brand: "VISA", date: march.From.AddDate(0, 0, 10*k),
			})
		}
	}

	writeJSONFile(filepath.Join(baseDir, "seed.json"), ds)
	fmt.Printf("Generated %d ledger installments -> seed.json\n", len(ds.Installments))

	dir := filepath.Join(baseDir, "statements")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		panic(err)
	}
	generateCieloCSV(statements["cielo"], filepath.Join(dir, "cielo_2024-03.csv"))
	generateRedeXLSX(statements["rede"], filepath.Join(dir, "rede_2024-03.xlsx"))

	fmt.Println("Test data generation complete.")
}

// split divides cents into n installments; the remainder goes to the first.
func split(cents int64, n int) []decimal.Decimal {
	base := cents / int64(n)
	out := make([]decimal.Decimal, n)
	for i := range out {
		c := base
		if i == 0 {
			c += cents - base*int64(n)
		}
		out[i] = decimal.New(c, -2)
	}
	return out
}

func generateCieloCSV(lines []statementLine, path string) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	defer w.Flush()

	w.Write([]string{"NSU", "Valor Bruto", "Parcela", "Bandeira", "Data Prevista"})
	for _, l := range lines {
		w.Write([]string{
			l.nsu,
			strings.Replace(l.amount.StringFixed(2), ".", ",", 1),
			fmt.Sprintf("%d/%d", l.number, l.total),
			l.brand,
			l.date.Format("02/01/2006"),
		})
	}

	fmt.Printf("Generated %d Cielo CSV records -> %s\n", len(lines), filepath.Base(path))
}

func generateRedeXLSX(lines []statementLine, path string) {
	rows := [][]any{{"nsu", "valor", "parcela", "total parcelas", "bandeira", "vencimento"}}
	for _, l := range lines {
		rows = append(rows, []any{
			l.nsu, l.amount.InexactFloat64(), l.number, l.total, l.brand, l.date.Format("2006-01-02"),
		})
	}
	data, err := ingestion.WriteXLSX("Recebimentos", rows)
	if err != nil {
		panic(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		panic(err)
	}

	fmt.Printf("Generated %d Rede XLSX records -> %s\n", len(lines), filepath.Base(path))
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	for _, c := range []string{"testdata", "../testdata", "../../testdata"} {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
