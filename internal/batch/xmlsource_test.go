package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmaraujo/fiscalflow/internal/models"
)

const nfeXML = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe35250641062896000105550010000003406123456789" versao="4.00">
      <ide>
        <nNF>3406</nNF>
        <serie>1</serie>
        <dhEmi>2026-08-01T10:30:00-03:00</dhEmi>
      </ide>
      <emit>
        <CNPJ>41062896000105</CNPJ>
        <xNome>TELCABLES BRASIL LTDA</xNome>
      </emit>
      <total>
        <ICMSTot>
          <vNF>1500.00</vNF>
        </ICMSTot>
      </total>
      <cobr>
        <dup>
          <nDup>001</nDup>
          <dVenc>2026-09-10</dVenc>
        </dup>
      </cobr>
    </infNFe>
  </NFe>
</nfeProc>`

const nfseXML = `<?xml version="1.0" encoding="UTF-8"?>
<CompNfse>
  <Nfse>
    <InfNfse>
      <Numero>789</Numero>
      <DataEmissao>2026-08-05T09:00:00</DataEmissao>
      <PrestadorServico>
        <RazaoSocial>CONSULTORIA BETA LTDA</RazaoSocial>
        <IdentificacaoPrestador>
          <Cnpj>11222333000144</Cnpj>
        </IdentificacaoPrestador>
      </PrestadorServico>
      <Servico>
        <Valores>
          <ValorServicos>350.00</ValorServicos>
        </Valores>
      </Servico>
    </InfNfse>
  </Nfse>
</CompNfse>`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseXMLDocumentNFe(t *testing.T) {
	doc, err := ParseXMLDocument(writeTemp(t, "nfe.xml", nfeXML))
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, models.KindGoodsInvoice, doc.Kind)
	assert.Equal(t, "xml_nfe", doc.ExtractedBy)
	assert.Equal(t, "3406", doc.Invoice.Number)
	assert.Equal(t, "1", doc.Invoice.Series)
	assert.Equal(t, "41062896000105", doc.Invoice.SupplierTaxID)
	assert.Equal(t, "TELCABLES BRASIL LTDA", doc.Invoice.SupplierName)
	assert.Equal(t, 1500.00, doc.Invoice.GrossValue)
	assert.Equal(t, "35250641062896000105550010000003406123456789", doc.Invoice.AccessKey)
	require.NotNil(t, doc.Invoice.DueDate)
	assert.Equal(t, time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC), *doc.Invoice.DueDate)

	// All four trust fields present: this document suppresses its PDF
	// rendition.
	assert.True(t, xmlComplete(doc))

	// The raw markup is kept for company assignment, which scans it for
	// tax ids the mapping ignores.
	assert.Contains(t, doc.RawSnippet, "<nNF>3406</nNF>")
}

func TestParseXMLDocumentNfse(t *testing.T) {
	doc, err := ParseXMLDocument(writeTemp(t, "nfse.xml", nfseXML))
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, models.KindInvoice, doc.Kind)
	assert.Equal(t, "xml_nfse", doc.ExtractedBy)
	assert.Equal(t, "789", doc.Invoice.Number)
	assert.Equal(t, "CONSULTORIA BETA LTDA", doc.Invoice.SupplierName)
	assert.Equal(t, 350.00, doc.Invoice.GrossValue)

	// The service schema carries no due date, so the document is
	// incomplete and a matching PDF must complement it.
	assert.False(t, xmlComplete(doc))
}

func TestParseXMLDocumentUnknownSchema(t *testing.T) {
	doc, err := ParseXMLDocument(writeTemp(t, "other.xml", `<recibo><valor>10</valor></recibo>`))
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestMergeCompleteXMLSuppressesPDFDuplicate(t *testing.T) {
	due := time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC)
	xmlDoc := &models.Document{
		Kind: models.KindGoodsInvoice,
		Invoice: &models.InvoiceFields{
			Number: "3406", SupplierName: "TELCABLES", GrossValue: 1500, DueDate: &due,
		},
	}
	pdfDup := &models.Document{
		Kind:    models.KindGoodsInvoice,
		Invoice: &models.InvoiceFields{Number: "0003406", GrossValue: 1480},
	}
	pdfOther := &models.Document{
		Kind:    models.KindInvoice,
		Invoice: &models.InvoiceFields{Number: "999", GrossValue: 80},
	}

	complete := map[string]struct{}{"3406": {}}
	out := mergeDocuments([]*models.Document{xmlDoc}, []*models.Document{pdfDup, pdfOther}, complete)

	require.Len(t, out, 2)
	assert.Same(t, xmlDoc, out[0])
	assert.Same(t, pdfOther, out[1])
}

func TestMergeIncompleteXMLComplementedByPDF(t *testing.T) {
	due := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	xmlDoc := &models.Document{
		Kind: models.KindInvoice,
		Invoice: &models.InvoiceFields{
			Number: "789", SupplierName: "CONSULTORIA BETA", GrossValue: 350,
		},
	}
	pdf := &models.Document{
		Kind: models.KindInvoice,
		Invoice: &models.InvoiceFields{
			Number: "789", GrossValue: 340, DueDate: &due, PaymentMethod: "boleto",
		},
	}

	out := mergeDocuments([]*models.Document{xmlDoc}, []*models.Document{pdf}, map[string]struct{}{})

	// The PDF is absorbed into the XML record, not emitted separately.
	require.Len(t, out, 1)
	assert.Same(t, xmlDoc, out[0])
	// Missing fields filled from the PDF; extracted XML values kept.
	require.NotNil(t, xmlDoc.Invoice.DueDate)
	assert.Equal(t, due, *xmlDoc.Invoice.DueDate)
	assert.Equal(t, "boleto", xmlDoc.Invoice.PaymentMethod)
	assert.Equal(t, 350.00, xmlDoc.Invoice.GrossValue)
	assert.Equal(t, "CONSULTORIA BETA", xmlDoc.Invoice.SupplierName)
}

func TestMergeKeepsSlipPrintingInvoiceNumber(t *testing.T) {
	due := time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC)
	xmlDoc := &models.Document{
		Kind: models.KindGoodsInvoice,
		Invoice: &models.InvoiceFields{
			Number: "3406", SupplierName: "TELCABLES", GrossValue: 1500, DueDate: &due,
		},
	}
	// Boletos routinely print the invoice number they pay as their own
	// "Documento" field; that must never read as a duplicate invoice.
	slip := &models.Document{
		Kind: models.KindPaymentSlip,
		Slip: &models.SlipFields{Amount: 1500, DocumentNo: "0003406"},
	}

	complete := map[string]struct{}{"3406": {}}
	out := mergeDocuments([]*models.Document{xmlDoc}, []*models.Document{slip}, complete)

	require.Len(t, out, 2)
	assert.Same(t, xmlDoc, out[0])
	assert.Same(t, slip, out[1])
}

func TestMergeUnrelatedPDFsPassThrough(t *testing.T) {
	slip := &models.Document{
		Kind: models.KindPaymentSlip,
		Slip: &models.SlipFields{Amount: 100, DocumentNo: "55"},
	}
	out := mergeDocuments(nil, []*models.Document{slip}, map[string]struct{}{})
	require.Len(t, out, 1)
	assert.Same(t, slip, out[0])
}
