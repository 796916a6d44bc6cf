package service

import (
	"context"

	"openbadges/internal/credential"
	"openbadges/internal/statuslist/models"
	dErrors "openbadges/pkg/domain-errors"
)

// signList renders list as a signed StatusList2021Credential carrying encoded.
func (s *Service) signList(ctx context.Context, list *models.StatusList, encoded string) ([]byte, error) {
	key, err := s.keys.GetOrCreateIssuerKey(ctx, list.IssuerID)
	if err != nil {
		return nil, err
	}

	listURL := s.ListURL(list.ID)
	contexts := make([]any, 0, len(s.cfg.Contexts))
	for _, c := range s.cfg.Contexts {
		contexts = append(contexts, c)
	}
	doc := &credential.Credential{
		Context:      contexts,
		ID:           listURL,
		Type:         []string{credential.TypeVerifiableCredential, credential.TypeStatusListCredential},
		Issuer:       list.IssuerID.String(),
		IssuanceDate: credential.FormatTime(list.CreatedAt),
		CredentialSubject: map[string]any{
			"id":            listURL + "#list",
			"type":          "StatusList2021",
			"statusPurpose": string(list.Purpose),
			"encodedList":   encoded,
		},
	}

	signed, err := credential.Sign(doc, key, s.now())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign status list credential")
	}
	s.metrics.IncrementCredentialsSigned()
	out, err := signed.MarshalJSON()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode status list credential")
	}
	return out, nil
}
