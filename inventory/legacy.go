/*
legacy.go - Backup documents from the browser-based predecessor

FORMAT:
  {
    "metadata": { "societeName", "version", "appName", "exportedBy", "exportDateIso" },
    "data": {
      "achats":     purchases  (articles: produit, numeroLot, quantite, prixAchat,
                                prixVente, datePeremption, fournisseur/fournisseurArticle)
      "ventes":     sales      (articles: produit, quantite, prixUnitaire, remise)
      "stock":      catalog    (nom, seuil, prixAchat, prixVente, quantite)
      "lots":       lot ledger (statut "actif" | "epuise"), often absent in old backups
      "mouvements": movements  (type "entree" | "sortie", stockAvant, stockApres)
      "devisFactures", "paiements", "retours", "users": carried as-is
      "societeInfo": { "nom" }
    },
    "statistics": {}
  }

Numbers were written by a JavaScript client, so integers may arrive as
floats and any field may be null or missing. The decoded dataset still goes
through Ingest, which rebuilds the lot ledger when "lots" is empty.
*/
package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DecodeLegacyDocument reads a legacy backup and converts it to a Dataset.
func DecodeLegacyDocument(r io.Reader) (*Dataset, error) {
	var doc legacyDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	ds := doc.dataset()
	ds.normalize()
	return ds, nil
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type legacyDocument struct {
	Metadata struct {
		SocieteName   string     `json:"societeName"`
		Version       string     `json:"version"`
		AppName       string     `json:"appName"`
		ExportedBy    string     `json:"exportedBy"`
		ExportDateIso legacyTime `json:"exportDateIso"`
	} `json:"metadata"`
	Data struct {
		Achats        []legacyPurchase  `json:"achats"`
		Ventes        []legacySale      `json:"ventes"`
		Stock         []legacyProduct   `json:"stock"`
		Lots          []legacyLot       `json:"lots"`
		Mouvements    []legacyMovement  `json:"mouvements"`
		DevisFactures []json.RawMessage `json:"devisFactures"`
		Paiements     []json.RawMessage `json:"paiements"`
		Retours       []json.RawMessage `json:"retours"`
		Users         []json.RawMessage `json:"users"`
		SocieteInfo   struct {
			Nom string `json:"nom"`
		} `json:"societeInfo"`
	} `json:"data"`
	Statistics json.RawMessage `json:"statistics"`
}

type legacyProduct struct {
	ID        string          `json:"id"`
	Nom       string          `json:"nom"`
	Seuil     legacyInt       `json:"seuil"`
	PrixAchat decimal.Decimal `json:"prixAchat"`
	PrixVente decimal.Decimal `json:"prixVente"`
	Quantite  legacyInt       `json:"quantite"`
	CreeLe    legacyTime      `json:"creeLe"`
}

type legacyLot struct {
	ID               string          `json:"id"`
	Produit          string          `json:"produit"`
	NumeroLot        string          `json:"numeroLot"`
	Quantite         legacyInt       `json:"quantite"`
	QuantiteInitiale legacyInt       `json:"quantiteInitiale"`
	DatePeremption   Date            `json:"datePeremption"`
	PrixAchat        decimal.Decimal `json:"prixAchat"`
	PrixVente        decimal.Decimal `json:"prixVente"`
	Fournisseur      string          `json:"fournisseur"`
	Reference        string          `json:"reference"`
	CreeLe           legacyTime      `json:"creeLe"`
	ModifieLe        legacyTime      `json:"modifieLe"`
}

type legacyMovement struct {
	ID         string     `json:"id"`
	Date       legacyTime `json:"date"`
	Produit    string     `json:"produit"`
	Type       string     `json:"type"`
	Quantite   legacyInt  `json:"quantite"`
	StockAvant legacyInt  `json:"stockAvant"`
	StockApres legacyInt  `json:"stockApres"`
	Reference  string     `json:"reference"`
	Notes      string     `json:"notes"`
	CreePar    string     `json:"creePar"`
}

type legacyPurchaseLine struct {
	Produit            string          `json:"produit"`
	NumeroLot          string          `json:"numeroLot"`
	Quantite           legacyInt       `json:"quantite"`
	PrixAchat          decimal.Decimal `json:"prixAchat"`
	PrixVente          decimal.Decimal `json:"prixVente"`
	DatePeremption     Date            `json:"datePeremption"`
	Fournisseur        string          `json:"fournisseur"`
	FournisseurArticle string          `json:"fournisseurArticle"`
}

type legacyPurchase struct {
	ID             string               `json:"id"`
	Date           Date                 `json:"date"`
	Fournisseur    string               `json:"fournisseur"`
	StatutPaiement string               `json:"statutPaiement"`
	Articles       []legacyPurchaseLine `json:"articles"`
	CreeLe         legacyTime           `json:"creeLe"`
	CreeParEmail   string               `json:"creeParEmail"`
}

type legacySaleLine struct {
	Produit      string          `json:"produit"`
	Quantite     legacyInt       `json:"quantite"`
	PrixUnitaire decimal.Decimal `json:"prixUnitaire"`
	Remise       decimal.Decimal `json:"remise"`
}

type legacySale struct {
	ID             string           `json:"id"`
	Date           Date             `json:"date"`
	Client         string           `json:"client"`
	ModePaiement   string           `json:"modePaiement"`
	StatutPaiement string           `json:"statutPaiement"`
	Notes          string           `json:"notes"`
	Articles       []legacySaleLine `json:"articles"`
	MontantTotal   decimal.Decimal  `json:"montantTotal"`
	CreeLe         legacyTime       `json:"creeLe"`
	CreatedBy      string           `json:"createdBy"`
}

// =============================================================================
// CONVERSION
// =============================================================================

func (doc *legacyDocument) dataset() *Dataset {
	ds := &Dataset{
		Metadata: Metadata{
			OrganizationName: doc.Metadata.SocieteName,
			Version:          doc.Metadata.Version,
			AppName:          doc.Metadata.AppName,
			ExportedBy:       doc.Metadata.ExportedBy,
			ExportedAt:       doc.Metadata.ExportDateIso.Time,
		},
		Company:    Company{Name: doc.Data.SocieteInfo.Nom},
		Quotes:     doc.Data.DevisFactures,
		Payments:   doc.Data.Paiements,
		Returns:    doc.Data.Retours,
		Users:      doc.Data.Users,
		Statistics: doc.Statistics,
	}
	if bytes.Equal(bytes.TrimSpace(ds.Statistics), []byte("null")) {
		ds.Statistics = nil
	}

	for _, p := range doc.Data.Stock {
		ds.Products = append(ds.Products, Product{
			ID:            p.ID,
			Name:          p.Nom,
			Threshold:     int(p.Seuil),
			PurchasePrice: p.PrixAchat,
			SalePrice:     p.PrixVente,
			Quantity:      int(p.Quantite),
			CreatedAt:     p.CreeLe.Time,
		})
	}

	for _, l := range doc.Data.Lots {
		// statut is re-derived from the quantity rather than trusted.
		status := LotActive
		if l.Quantite <= 0 {
			status = LotDepleted
		}
		ds.Lots = append(ds.Lots, Lot{
			ID:            l.ID,
			Product:       l.Produit,
			LotNumber:     l.NumeroLot,
			Remaining:     int(l.Quantite),
			Initial:       int(l.QuantiteInitiale),
			Expiry:        l.DatePeremption,
			PurchasePrice: l.PrixAchat,
			SalePrice:     l.PrixVente,
			Supplier:      l.Fournisseur,
			Status:        status,
			Reference:     l.Reference,
			CreatedAt:     l.CreeLe.Time,
			ModifiedAt:    l.ModifieLe.Time,
		})
	}

	for _, m := range doc.Data.Mouvements {
		dir := DirectionIn
		if m.Type == "sortie" {
			dir = DirectionOut
		}
		ds.Movements = append(ds.Movements, Movement{
			ID:        m.ID,
			At:        m.Date.Time,
			Product:   m.Produit,
			LotNumber: lotNumberFromNote(m.Notes),
			Direction: dir,
			Quantity:  int(m.Quantite),
			Before:    int(m.StockAvant),
			After:     int(m.StockApres),
			Reference: m.Reference,
			Note:      m.Notes,
			Actor:     m.CreePar,
		})
	}

	for _, a := range doc.Data.Achats {
		p := Purchase{
			ID:            a.ID,
			Date:          a.Date,
			Supplier:      a.Fournisseur,
			PaymentStatus: a.StatutPaiement,
			Lines:         make([]PurchaseLine, 0, len(a.Articles)),
			CreatedAt:     a.CreeLe.Time,
			CreatedBy:     a.CreeParEmail,
		}
		for _, l := range a.Articles {
			supplier := l.Fournisseur
			if supplier == "" {
				supplier = l.FournisseurArticle
			}
			p.Lines = append(p.Lines, PurchaseLine{
				Product:       l.Produit,
				LotNumber:     l.NumeroLot,
				Quantity:      int(l.Quantite),
				PurchasePrice: l.PrixAchat,
				SalePrice:     l.PrixVente,
				Expiry:        l.DatePeremption,
				Supplier:      supplier,
			})
		}
		ds.Purchases = append(ds.Purchases, p)
	}

	for _, v := range doc.Data.Ventes {
		s := Sale{
			ID:            v.ID,
			Date:          v.Date,
			Client:        v.Client,
			PaymentMode:   v.ModePaiement,
			PaymentStatus: v.StatutPaiement,
			Notes:         v.Notes,
			Lines:         make([]SaleLine, 0, len(v.Articles)),
			TotalAmount:   v.MontantTotal,
			CreatedAt:     v.CreeLe.Time,
			CreatedBy:     v.CreatedBy,
		}
		for _, l := range v.Articles {
			s.Lines = append(s.Lines, SaleLine{
				Product:   l.Produit,
				Quantity:  int(l.Quantite),
				UnitPrice: l.PrixUnitaire,
				Discount:  l.Remise,
			})
		}
		ds.Sales = append(ds.Sales, s)
	}

	return ds
}

// lotNumberFromNote recovers the lot number from notes such as
// "Achat - Lot L001" or "Vente - Lot L001".
func lotNumberFromNote(note string) string {
	const marker = " - Lot "
	if i := strings.LastIndex(note, marker); i >= 0 {
		return note[i+len(marker):]
	}
	return ""
}

// =============================================================================
// LENIENT SCALARS
// =============================================================================

// legacyInt accepts integers written as JSON floats or numeric strings.
// null and "" decode to 0.
type legacyInt int

func (n *legacyInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return fmt.Errorf("invalid quantity %s: %w", b, err)
	}
	*n = legacyInt(math.Round(f))
	return nil
}

// legacyTime accepts "", null, ISO timestamps and millisecond epochs.
type legacyTime struct {
	time.Time
}

func (t *legacyTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	if b[0] != '"' {
		var ms int64
		if err := json.Unmarshal(b, &ms); err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", b, err)
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		d, derr := ParseDate(s)
		if derr != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		parsed = d.Time
	}
	t.Time = parsed.UTC()
	return nil
}
