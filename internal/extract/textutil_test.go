package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	assert.Equal(t, 1234.56, ParseMoney("1.234,56"))
	assert.Equal(t, 99.90, ParseMoney("R$ 99,90"))
	assert.Equal(t, 1500000.00, ParseMoney("1.500.000,00"))
	assert.Equal(t, 0.0, ParseMoney(""))
	assert.Equal(t, 0.0, ParseMoney("abc"))
}

func TestParseDateBR(t *testing.T) {
	d := ParseDateBR("Vencimento: 15/03/2026")
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), *d)

	// Alternate separators.
	d = ParseDateBR("10-09-2026")
	require.NotNil(t, d)
	assert.Equal(t, time.September, d.Month())

	// Two-digit years pivot at 50.
	d = ParseDateBR("05/07/25")
	require.NotNil(t, d)
	assert.Equal(t, 2025, d.Year())
	d = ParseDateBR("05/07/99")
	require.NotNil(t, d)
	assert.Equal(t, 1999, d.Year())

	// Impossible calendar dates are rejected, not normalized.
	assert.Nil(t, ParseDateBR("31/02/2026"))
	assert.Nil(t, ParseDateBR("10/13/2026"))
	assert.Nil(t, ParseDateBR("sem data"))
}

func TestFindDateAfter(t *testing.T) {
	// Slip layouts render label and value on separate lines.
	text := "Beneficiário: ACME\nVencimento\n\n10/09/2026\nValor do Documento"
	d := FindDateAfter(text, []string{"VENCIMENTO"}, 3)
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC), *d)

	// Out of lookahead range.
	assert.Nil(t, FindDateAfter(text, []string{"VENCIMENTO"}, 1))
	assert.Nil(t, FindDateAfter("sem vencimento aqui", []string{"VENCIMENTO"}, 3))
}

func TestFindDigitableLine(t *testing.T) {
	line := "23793.38128 60007.827136 95000.063305 9 84410000002000"
	got := FindDigitableLine("pague pelo código:\n" + line)
	assert.Len(t, got, 47)
	assert.Equal(t, Digits(line), got)

	assert.Equal(t, "", FindDigitableLine("nenhuma linha aqui 123"))
}

func TestFindAccessKey(t *testing.T) {
	spaced := "3525 0641 0628 9600 0105 5500 1000 0034 0612 3456 7890"
	got := FindAccessKey("Chave de Acesso: " + spaced)
	assert.Len(t, got, 44)

	contiguous := "35250641062896000105550010000003406123456789"
	assert.Equal(t, contiguous, FindAccessKey("chave "+contiguous+" fim"))

	assert.Equal(t, "", FindAccessKey("1234 5678"))
}

func TestFindCNPJ(t *testing.T) {
	assert.Equal(t, "22677702000147", FindCNPJ("CNPJ: 22.677.702/0001-47"))
	assert.Equal(t, "", FindCNPJ("CPF: 123.456.789-00"))
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "ASSOCIACAOCOMERCIAL", Compact("Associação Comercial"))
	assert.Equal(t, "NFSE1234", Compact("NFS-e: 1234"))
}

func TestStripAccents(t *testing.T) {
	assert.Equal(t, "Prestacao de Servicos", StripAccents("Prestação de Serviços"))
	assert.Equal(t, "EMISSAO", StripAccents("EMISSÃO"))
}
