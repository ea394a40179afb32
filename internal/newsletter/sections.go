package newsletter

func openSection(v view) (string, error) { return execute("open", v) }

func closeSection(v view) (string, error) { return execute("close", v) }

// headerSection renders the logo and company name bar. Omitted when the
// brand has neither.
func headerSection(v view) (string, error) {
	if v.LogoURL == "" && v.CompanyName == "" {
		return "", nil
	}
	return execute("header", v)
}

func heroImageSection(v view) (string, error) {
	if v.HeaderImage == "" {
		return "", nil
	}
	return execute("hero_image", v)
}

func bodySection(v view) (string, error) { return execute("body", v) }

// ctaSection renders the button only when both text and URL survived
// defaulting; a half-filled call to action is dropped.
func ctaSection(v view) (string, error) {
	if v.ButtonText == "" || v.ButtonURL == "" {
		return "", nil
	}
	return execute("cta", v)
}

func featuresSection(v view) (string, error) { return execute("features", v) }

func footerMessageSection(v view) (string, error) {
	if v.FooterMessage == "" {
		return "", nil
	}
	return execute("footer_message", v)
}

func socialSection(v view) (string, error) {
	if len(v.Social) == 0 {
		return "", nil
	}
	return execute("social", v)
}

func footerSection(v view) (string, error) { return execute("footer", v) }
