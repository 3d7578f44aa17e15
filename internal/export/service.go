package export

import (
	"context"
)

// Service renders reports and whitepapers in the requested format.
type Service struct {
	pdf PDFRenderer
}

func NewService(pdf PDFRenderer) *Service {
	if pdf == nil {
		pdf = NewChromeRenderer()
	}
	return &Service{pdf: pdf}
}

func (s *Service) PitchReport(ctx context.Context, data ReportData, format Format) (*Result, error) {
	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, err
	}
	return s.output(ctx, html, data.ProjectName+" analysis", format)
}

func (s *Service) Whitepaper(ctx context.Context, data WhitepaperData, format Format) (*Result, error) {
	html, err := RenderWhitepaperHTML(data)
	if err != nil {
		return nil, err
	}
	return s.output(ctx, html, data.ProjectName+" whitepaper", format)
}

func (s *Service) output(ctx context.Context, html, title string, format Format) (*Result, error) {
	name := sanitizeFilename(title)
	if format == FormatHTML {
		return &Result{Data: []byte(html), Filename: name + ".html", MimeType: "text/html; charset=utf-8"}, nil
	}
	data, err := s.pdf.RenderPDF(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Filename: name + ".pdf", MimeType: "application/pdf"}, nil
}
