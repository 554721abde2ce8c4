package entities

type EmailAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Email struct {
	To          string
	Subject     string
	HTML        string
	Attachments []EmailAttachment

	// Tags let the provider group messages, e.g. per order.
	Tags map[string]string
}
