package batch

import (
	"encoding/xml"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rmaraujo/fiscalflow/internal/models"
)

// Structured XML sources: the national goods-invoice schema (NF-e) and
// the ABRASF service-invoice schema (NFS-e). Only the fields the
// pipeline needs are mapped; everything else in the schemas is ignored.

type nfeProc struct {
	XMLName xml.Name `xml:"nfeProc"`
	NFe     nfeNode  `xml:"NFe"`
}

type nfeNode struct {
	InfNFe struct {
		Ide struct {
			Number string `xml:"nNF"`
			Series string `xml:"serie"`
			Issued string `xml:"dhEmi"`
		} `xml:"ide"`
		Emit struct {
			TaxID string `xml:"CNPJ"`
			Name  string `xml:"xNome"`
		} `xml:"emit"`
		Total struct {
			ICMSTot struct {
				Value string `xml:"vNF"`
			} `xml:"ICMSTot"`
		} `xml:"total"`
		Cobr struct {
			Dups []struct {
				DueDate string `xml:"dVenc"`
			} `xml:"dup"`
		} `xml:"cobr"`
		ID string `xml:"Id,attr"`
	} `xml:"infNFe"`
}

type compNfse struct {
	XMLName xml.Name `xml:"CompNfse"`
	Inf     struct {
		Number   string `xml:"Numero"`
		Issued   string `xml:"DataEmissao"`
		Supplier struct {
			Name  string `xml:"RazaoSocial"`
			Ident struct {
				TaxID string `xml:"Cnpj"`
			} `xml:"IdentificacaoPrestador"`
		} `xml:"PrestadorServico"`
		Service struct {
			Values struct {
				Amount string `xml:"ValorServicos"`
			} `xml:"Valores"`
		} `xml:"Servico"`
	} `xml:"Nfse>InfNfse"`
}

// ParseXMLDocument reads a structured invoice file and maps it to a
// document record. Returns nil when the file is neither schema.
func ParseXMLDocument(path string) (*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc *models.Document
	var goods nfeProc
	var bare nfeNode
	var service compNfse
	switch {
	case xml.Unmarshal(data, &goods) == nil && goods.NFe.InfNFe.Ide.Number != "":
		doc = mapNFe(path, &goods)
	// Some issuers ship the bare NFe without the process wrapper.
	case xml.Unmarshal(data, &bare) == nil && bare.InfNFe.Ide.Number != "":
		doc = mapNFe(path, &nfeProc{NFe: bare})
	case xml.Unmarshal(data, &service) == nil && service.Inf.Number != "":
		doc = mapNfse(path, &service)
	default:
		return nil, nil
	}
	// Keep the raw markup around: company assignment scans it for the
	// recipient tax id, which is not mapped into the record.
	doc.RawSnippet = snippet(string(data))
	return doc, nil
}

func mapNFe(path string, src *nfeProc) *models.Document {
	inf := &src.NFe.InfNFe
	doc := &models.Document{
		SourceFile:  path,
		ProcessedAt: time.Now(),
		Kind:        models.KindGoodsInvoice,
		ExtractedBy: "xml_nfe",
		Invoice: &models.InvoiceFields{
			Number:        inf.Ide.Number,
			Series:        inf.Ide.Series,
			SupplierTaxID: inf.Emit.TaxID,
			SupplierName:  inf.Emit.Name,
			GrossValue:    parseXMLAmount(inf.Total.ICMSTot.Value),
		},
	}
	if key := strings.TrimPrefix(inf.ID, "NFe"); len(key) == 44 {
		doc.Invoice.AccessKey = key
	}
	doc.Invoice.IssueDate = parseXMLDate(inf.Ide.Issued)
	if len(inf.Cobr.Dups) > 0 {
		doc.Invoice.DueDate = parseXMLDate(inf.Cobr.Dups[0].DueDate)
	}
	return doc
}

func mapNfse(path string, src *compNfse) *models.Document {
	return &models.Document{
		SourceFile:  path,
		ProcessedAt: time.Now(),
		Kind:        models.KindInvoice,
		ExtractedBy: "xml_nfse",
		Invoice: &models.InvoiceFields{
			Number:        src.Inf.Number,
			SupplierTaxID: src.Inf.Supplier.Ident.TaxID,
			SupplierName:  src.Inf.Supplier.Name,
			GrossValue:    parseXMLAmount(src.Inf.Service.Values.Amount),
			IssueDate:     parseXMLDate(src.Inf.Issued),
		},
	}
}

// parseXMLAmount reads the dot-decimal amounts both schemas use.
func parseXMLAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseXMLDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// xmlComplete reports whether a structured document can be trusted
// outright: supplier name, due date, number and gross value must all be
// present. Anything less and the PDF attachments are still processed to
// fill the gaps.
func xmlComplete(doc *models.Document) bool {
	if doc == nil || doc.Invoice == nil {
		return false
	}
	inv := doc.Invoice
	return inv.SupplierName != "" &&
		inv.DueDate != nil &&
		inv.Number != "" &&
		inv.GrossValue > 0
}
