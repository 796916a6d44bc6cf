package badges

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"strings"

	"github.com/cucumber/godog"
)

const (
	keyCredential = "credential"
	keyAssertion  = "assertion_id"
	keyToken      = "admin_token"
	keyETag       = "status_etag"
	keyListPath   = "status_list_path"
	keyBaked      = "baked_image"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	POSTWithHeaders(path string, body any, headers map[string]string) error
	POSTRaw(path, contentType string, body []byte, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(name string) string
	AdminToken(actor string, scopes ...string) (string, error)
	Remember(key string, value []byte)
	Recall(key string) ([]byte, bool)
}

// RegisterSteps registers issuance, verification and revocation steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &badgeSteps{tc: tc}

	// Admin
	ctx.Step(`^I am an admin "([^"]*)" with scopes "([^"]*)"$`, steps.adminWithScopes)

	// Issuance
	ctx.Step(`^I issue a badge "([^"]*)" for issuer "([^"]*)"$`, steps.issueBadge)
	ctx.Step(`^I issue a hosted badge "([^"]*)" for issuer "([^"]*)"$`, steps.issueHostedBadge)
	ctx.Step(`^I issue a badge without a token for issuer "([^"]*)"$`, steps.issueWithoutToken)

	// Verification
	ctx.Step(`^I verify the issued credential$`, steps.verifyIssued)
	ctx.Step(`^I verify a tampered copy of the issued credential$`, steps.verifyTampered)
	ctx.Step(`^I verify the stored assertion$`, steps.verifyStored)
	ctx.Step(`^the verification should be valid$`, steps.verificationShouldBe(true))
	ctx.Step(`^the verification should be invalid$`, steps.verificationShouldBe(false))
	ctx.Step(`^the verification errors should mention "([^"]*)"$`, steps.verificationErrorsMention)

	// Baking
	ctx.Step(`^I bake the issued credential into a PNG$`, steps.bakePNG)
	ctx.Step(`^I verify the baked image$`, steps.verifyBaked)
	ctx.Step(`^I extract the baked image$`, steps.extractBaked)
	ctx.Step(`^the extracted payload should be the issued credential$`, steps.extractedIsIssued)

	// Status
	ctx.Step(`^I revoke the issued credential with reason "([^"]*)"$`, steps.revoke)
	ctx.Step(`^I reinstate the issued credential$`, steps.reinstate)
	ctx.Step(`^I fetch the status list of the issued credential$`, steps.fetchStatusList)
	ctx.Step(`^I fetch the status list again with its ETag$`, steps.fetchStatusListConditional)
}

type badgeSteps struct {
	tc TestContext
}

func (s *badgeSteps) adminWithScopes(ctx context.Context, actor, scopes string) error {
	token, err := s.tc.AdminToken(actor, strings.Split(scopes, ",")...)
	if err != nil {
		return err
	}
	s.tc.Remember(keyToken, []byte(token))
	return nil
}

func (s *badgeSteps) authHeader() map[string]string {
	token, ok := s.tc.Recall(keyToken)
	if !ok {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + string(token)}
}

func issuePath(issuer string) string {
	return "/v1/issuers/" + url.PathEscape(issuer) + "/assertions"
}

func issueBody(name string, hosted bool) map[string]any {
	return map[string]any{
		"hosted": hosted,
		"credential": map[string]any{
			"credentialSubject": map[string]any{
				"id":   "mailto:learner@example.org",
				"type": []string{"AchievementSubject"},
				"achievement": map[string]any{
					"id":       "https://issuer.example/achievements/" + url.PathEscape(name),
					"name":     name,
					"criteria": map[string]any{"narrative": "Completed " + name},
				},
			},
		},
	}
}

func (s *badgeSteps) issue(name, issuer string, hosted bool) error {
	if err := s.tc.POSTWithHeaders(issuePath(issuer), issueBody(name, hosted), s.authHeader()); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 201 {
		return fmt.Errorf("issue: expected 201 but got %d: %s", status, s.tc.GetLastResponseBody())
	}
	var issued struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &issued); err != nil {
		return fmt.Errorf("issue: decode credential: %w", err)
	}
	s.tc.Remember(keyCredential, s.tc.GetLastResponseBody())
	s.tc.Remember(keyAssertion, []byte(issued.ID))
	return nil
}

func (s *badgeSteps) issueBadge(ctx context.Context, name, issuer string) error {
	return s.issue(name, issuer, false)
}

func (s *badgeSteps) issueHostedBadge(ctx context.Context, name, issuer string) error {
	return s.issue(name, issuer, true)
}

func (s *badgeSteps) issueWithoutToken(ctx context.Context, issuer string) error {
	return s.tc.POST(issuePath(issuer), issueBody("Unauthorized", false))
}

func (s *badgeSteps) recall(key string) ([]byte, error) {
	v, ok := s.tc.Recall(key)
	if !ok {
		return nil, fmt.Errorf("no %s recorded in this scenario", key)
	}
	return v, nil
}

func (s *badgeSteps) assertionPath(suffix string) (string, error) {
	assertionID, err := s.recall(keyAssertion)
	if err != nil {
		return "", err
	}
	return "/v1/assertions/" + url.PathEscape(string(assertionID)) + suffix, nil
}

func (s *badgeSteps) verifyIssued(ctx context.Context) error {
	cred, err := s.recall(keyCredential)
	if err != nil {
		return err
	}
	return s.tc.POSTRaw("/v1/verify", "application/json", cred, nil)
}

func (s *badgeSteps) verifyTampered(ctx context.Context) error {
	cred, err := s.recall(keyCredential)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(cred, &doc); err != nil {
		return err
	}
	subject, _ := doc["credentialSubject"].(map[string]any)
	achievement, _ := subject["achievement"].(map[string]any)
	if achievement == nil {
		return fmt.Errorf("issued credential has no achievement")
	}
	achievement["name"] = "Something Else"
	tampered, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.tc.POSTRaw("/v1/verify", "application/json", tampered, nil)
}

func (s *badgeSteps) verifyStored(ctx context.Context) error {
	path, err := s.assertionPath("/verify")
	if err != nil {
		return err
	}
	return s.tc.GET(path, nil)
}

func (s *badgeSteps) verificationShouldBe(want bool) func(context.Context) error {
	return func(ctx context.Context) error {
		var res struct {
			Valid  bool     `json:"valid"`
			Errors []string `json:"errors"`
		}
		if err := json.Unmarshal(s.tc.GetLastResponseBody(), &res); err != nil {
			return fmt.Errorf("decode verification result: %w", err)
		}
		if res.Valid != want {
			return fmt.Errorf("expected valid=%t, got errors %v", want, res.Errors)
		}
		return nil
	}
}

func (s *badgeSteps) verificationErrorsMention(ctx context.Context, text string) error {
	var res struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &res); err != nil {
		return fmt.Errorf("decode verification result: %w", err)
	}
	for _, e := range res.Errors {
		if strings.Contains(e, text) {
			return nil
		}
	}
	return fmt.Errorf("no verification error mentions %q: %v", text, res.Errors)
}

func blankPNG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := range 4 {
		for y := range 4 {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *badgeSteps) bakePNG(ctx context.Context) error {
	path, err := s.assertionPath("/bake")
	if err != nil {
		return err
	}
	img, err := blankPNG()
	if err != nil {
		return err
	}
	if err := s.tc.POSTRaw(path, "image/png", img, nil); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("bake: expected 200 but got %d: %s", status, s.tc.GetLastResponseBody())
	}
	s.tc.Remember(keyBaked, s.tc.GetLastResponseBody())
	return nil
}

func (s *badgeSteps) verifyBaked(ctx context.Context) error {
	baked, err := s.recall(keyBaked)
	if err != nil {
		return err
	}
	return s.tc.POSTRaw("/v1/verify", "image/png", baked, nil)
}

func (s *badgeSteps) extractBaked(ctx context.Context) error {
	baked, err := s.recall(keyBaked)
	if err != nil {
		return err
	}
	return s.tc.POSTRaw("/v1/badges/extract", "image/png", baked, nil)
}

func (s *badgeSteps) extractedIsIssued(ctx context.Context) error {
	cred, err := s.recall(keyCredential)
	if err != nil {
		return err
	}
	var want, got any
	if err := json.Unmarshal(cred, &want); err != nil {
		return err
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &got); err != nil {
		return fmt.Errorf("extracted payload is not JSON: %w", err)
	}
	wantJSON, _ := json.Marshal(want)
	gotJSON, _ := json.Marshal(got)
	if !bytes.Equal(wantJSON, gotJSON) {
		return fmt.Errorf("extracted payload differs from the issued credential")
	}
	return nil
}

func (s *badgeSteps) revoke(ctx context.Context, reason string) error {
	path, err := s.assertionPath("/revoke")
	if err != nil {
		return err
	}
	return s.tc.POSTWithHeaders(path, map[string]string{"reason": reason}, s.authHeader())
}

func (s *badgeSteps) reinstate(ctx context.Context) error {
	path, err := s.assertionPath("/reinstate")
	if err != nil {
		return err
	}
	return s.tc.POSTRaw(path, "application/json", nil, s.authHeader())
}

func (s *badgeSteps) fetchStatusList(ctx context.Context) error {
	cred, err := s.recall(keyCredential)
	if err != nil {
		return err
	}
	var doc struct {
		CredentialStatus struct {
			StatusListCredential string `json:"statusListCredential"`
		} `json:"credentialStatus"`
	}
	if err := json.Unmarshal(cred, &doc); err != nil {
		return err
	}
	u, err := url.Parse(doc.CredentialStatus.StatusListCredential)
	if err != nil || u.Path == "" {
		return fmt.Errorf("issued credential has no usable statusListCredential")
	}
	s.tc.Remember(keyListPath, []byte(u.Path))
	if err := s.tc.GET(u.Path, nil); err != nil {
		return err
	}
	s.tc.Remember(keyETag, []byte(s.tc.GetLastResponseHeader("ETag")))
	return nil
}

func (s *badgeSteps) fetchStatusListConditional(ctx context.Context) error {
	path, err := s.recall(keyListPath)
	if err != nil {
		return err
	}
	etag, err := s.recall(keyETag)
	if err != nil {
		return err
	}
	return s.tc.GET(string(path), map[string]string{"If-None-Match": string(etag)})
}
