package admission

import (
	"fmt"

	"github.com/roach88/msggate/internal/wire"
)

// validate is the first gate. It only looks at lengths and ids so that
// oversized submissions are rejected before any hashing or verification.
func validate(m wire.Message, dest wire.ChainID) error {
	if len(m.Sender) > wire.MaxSenderSize {
		return fmt.Errorf("sender is %d bytes, max %d: %w", len(m.Sender), wire.MaxSenderSize, ErrSenderTooLong)
	}
	if len(m.Recipient) > wire.MaxRecipientSize {
		return fmt.Errorf("recipient is %d bytes, max %d: %w", len(m.Recipient), wire.MaxRecipientSize, ErrRecipientTooLong)
	}
	if len(m.OnChainPayload) > wire.MaxOnChainDataSize {
		return fmt.Errorf("on-chain payload is %d bytes, max %d: %w", len(m.OnChainPayload), wire.MaxOnChainDataSize, ErrPayloadTooLarge)
	}
	if len(m.OffChainPayloadRef) > wire.MaxOffChainDataSize {
		return fmt.Errorf("off-chain reference is %d bytes, max %d: %w", len(m.OffChainPayloadRef), wire.MaxOffChainDataSize, ErrReferenceTooLarge)
	}
	if len(m.Signatures) > wire.MaxSignatures {
		return fmt.Errorf("%d signatures attached, max %d: %w", len(m.Signatures), wire.MaxSignatures, ErrTooManySignatures)
	}
	if !m.SourceChainID.Valid() {
		return fmt.Errorf("source chain %s: %w", m.SourceChainID, ErrInvalidChainID)
	}
	if !m.DestChainID.Valid() {
		return fmt.Errorf("dest chain %s: %w", m.DestChainID, ErrInvalidChainID)
	}
	if dest != 0 && m.DestChainID != dest {
		return fmt.Errorf("dest chain %s, gateway serves %s: %w", m.DestChainID, dest, ErrWrongDestination)
	}
	return nil
}
