package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterSenderBlacklistAlwaysSkips(t *testing.T) {
	f := NewRelevanceFilter()

	// Blacklisted senders lose even with attachments and a billing
	// subject.
	dec := f.Decide("Nota Fiscal 123", "promo@mail.mailchimp.com", 2)
	assert.False(t, dec.Process)

	dec = f.Decide("Fatura", "newsletter@fornecedor.com.br", 1)
	assert.False(t, dec.Process)
}

func TestFilterSubjectBlacklist(t *testing.T) {
	f := NewRelevanceFilter()

	for _, subject := range []string{
		"Feliz Natal a todos os clientes",
		"Comunicado de horário de funcionamento",
		"Promoção imperdível",
		"RE: RE: alinhamento",
		"Pré-cobrança mensalidade",
		"Distrato de contrato",
	} {
		dec := f.Decide(subject, "contato@fornecedor.com.br", 1)
		assert.False(t, dec.Process, "subject %q should be skipped", subject)
	}
}

func TestFilterAttachmentsWin(t *testing.T) {
	f := NewRelevanceFilter()

	// A document in hand beats any subject heuristic.
	dec := f.Decide("bom dia", "alguem@empresa.com.br", 1)
	assert.True(t, dec.Process)
	assert.Equal(t, "has attachments", dec.Reason)
}

func TestFilterNoAttachmentsNeedsBillingSignal(t *testing.T) {
	f := NewRelevanceFilter()

	assert.True(t, f.Decide("Sua fatura chegou", "alguem@empresa.com.br", 0).Process)
	assert.True(t, f.Decide("NFS-e disponível", "alguem@empresa.com.br", 0).Process)
	assert.True(t, f.Decide("bom dia", "cobranca@fornecedor.com.br", 0).Process)
	assert.True(t, f.Decide("documento", "portal@prefeitura.mg.gov.br", 0).Process)

	assert.False(t, f.Decide("bom dia", "alguem@empresa.com.br", 0).Process)
}
