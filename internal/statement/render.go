package statement

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

const (
	rule            = "========================================"
	entryDateLayout = "02/01/2006 15:04"
	fileNameLayout  = "20060102150405"
)

// FileName is the download name of a rendered statement generated at t.
func FileName(t time.Time) string {
	return "extrato_" + t.UTC().Format(fileNameLayout) + ".txt"
}

// RenderText writes the fixed-layout plain-text report of s to w. Dates are
// shown in loc.
func RenderText(w io.Writer, s *Statement, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) {
		fmt.Fprintf(bw, format+"\n", args...)
	}

	p("EXTRATO BANCÁRIO")
	p(rule)
	p("Conta: %s Agência: %s", s.AccountNumber, s.Branch)
	p("Cliente: %s", s.ClientName)
	p("Período: %s", s.Period)
	p("Data Geração: %s", s.GeneratedAt.In(loc).Format(entryDateLayout))
	p("")
	p("SALDO ANTERIOR: R$ %s", s.OpeningBalance)
	p("SALDO ATUAL: R$ %s", s.CurrentBalance)
	p("")
	p("LANÇAMENTOS:")
	p(rule)
	for _, e := range s.Entries {
		p("%s | %-10s | %-30s | R$ %10s | Saldo: R$ %10s",
			e.Date.In(loc).Format(entryDateLayout), e.Type, e.Description, e.Amount, e.RunningBalance)
	}
	p("")
	p("RESUMO:")
	p(rule)
	p("Total Créditos: R$ %s", s.TotalCredits)
	p("Total Débitos: R$ %s", s.TotalDebits)
	p("Transações: %d", s.EntryCount)
	p("Dias com transações: %d", s.Summary.ActiveDays)
	p("Dia mais movimentado: %s", s.Summary.BusiestDay)
	p("Maior crédito: R$ %s", s.Summary.LargestCredit)
	p("Maior débito: R$ %s", s.Summary.LargestDebit)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write statement text: %w", err)
	}
	return nil
}
