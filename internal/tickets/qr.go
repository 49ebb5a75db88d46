package tickets

import (
	"fmt"

	"ms-reservation/internal/models"

	"github.com/skip2/go-qrcode"
)

// QRCode renders the signed ticket payload as a 256x256 PNG. The payload
// carries the ticket id and its verification code, so a gate scanner can check
// the signature offline against the issuing key.
func (s *Service) QRCode(ticket *models.Ticket) ([]byte, error) {
	payload := fmt.Sprintf("TICKETZA:%s:%s", ticket.TicketID, ticket.VerificationCode)
	return qrcode.Encode(payload, qrcode.Medium, 256)
}
