// Package pdf renders a printable voucher the user can hand to the partner.
package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// VoucherData carries everything the printed voucher shows. All fields are
// preformatted strings so the renderer stays presentation-only.
type VoucherData struct {
	Code           string
	RewardName     string
	RewardDetails  string
	PartnerName    string
	PartnerAddress string
	PointsSpent    string
	IssuedAt       string
	ExpiresAt      string
	State          string
}

type Provider interface {
	GenerateVoucher(ctx context.Context, data VoucherData) (io.Reader, error)
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateVoucher(_ context.Context, data VoucherData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(30,
		text.NewCol(12, "Reward Voucher", props.Text{
			Size:  22,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)

	m.AddRow(25,
		text.NewCol(12, data.Code, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Center,
			Top:   5,
		}),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New(data.RewardName, props.Text{Size: 12, Style: fontstyle.Bold}),
			text.New(data.RewardDetails, props.Text{Size: 9, Top: 7}),
		),
		col.New(6).Add(
			text.New("Redeem at", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(data.PartnerName, props.Text{Size: 9, Top: 5}),
			text.New(data.PartnerAddress, props.Text{Size: 9, Top: 9}),
		),
	)

	m.AddRow(10,
		text.NewCol(4, "Points spent", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Issued", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Valid until", props.Text{Style: fontstyle.Bold, Size: 9}),
	)
	m.AddRow(10,
		text.NewCol(4, data.PointsSpent, props.Text{Size: 9}),
		text.NewCol(4, data.IssuedAt, props.Text{Size: 9}),
		text.NewCol(4, data.ExpiresAt, props.Text{Size: 9}),
	)

	m.AddRow(15,
		text.NewCol(12, "Present this voucher at the partner before its expiry date. Single use.", props.Text{
			Size: 8,
			Top:  5,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
