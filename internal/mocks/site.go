package mocks

import (
	"github.com/xkilldash9x/autoapply/internal/config"
)

// DashboardURL is where SitePage lands after a successful sign in.
const DashboardURL = "https://www.dice.com/dashboard"

// SitePage returns a page on which the whole login and application flow can
// succeed: every login control, the first Easy Apply candidate, and the
// next and submit buttons are present.
func SitePage(site config.SiteConfig) *FakePage {
	p := NewFakePage(
		site.EmailInput.Selector,
		site.ContinueButton.Selector,
		site.PasswordInput.Selector,
		site.SignInButton.Selector,
		site.NextButton.Selector,
		site.SubmitButton.Selector,
	)
	if len(site.EasyApplyLocators) > 0 {
		p.Show(site.EasyApplyLocators[0].Selector)
	}
	p.Redirects[site.SignInButton.Selector] = DashboardURL
	return p
}
