package taxonomy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chartmill/chartmill/internal/core/domain"
)

// Seed is the curated starting vocabulary: the fixed categories plus the
// approved keywords the rule projector refers to by id.
type Seed struct {
	Categories []SeedCategory `yaml:"categories"`
}

type SeedCategory struct {
	ID       string        `yaml:"id"`
	Label    string        `yaml:"label"`
	Keywords []SeedKeyword `yaml:"keywords"`
}

type SeedKeyword struct {
	Label    string   `yaml:"label"`
	Synonyms []string `yaml:"synonyms"`
}

// LoadSeed reads a YAML seed file; an empty path yields the built-in default.
func LoadSeed(path string) (Seed, error) {
	if path == "" {
		return DefaultSeed(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read taxonomy seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse taxonomy seed: %w", err)
	}
	if len(seed.Categories) == 0 {
		return Seed{}, fmt.Errorf("taxonomy seed %s has no categories", path)
	}
	return seed, nil
}

// Concepts expands the seed into domain records with namespaced ids.
func (s Seed) Concepts() ([]domain.Category, []domain.Keyword) {
	var categories []domain.Category
	var keywords []domain.Keyword
	for _, c := range s.Categories {
		categories = append(categories, domain.Category{ID: c.ID, Label: c.Label})
		for _, k := range c.Keywords {
			syn := k.Synonyms
			if syn == nil {
				syn = []string{}
			}
			keywords = append(keywords, domain.Keyword{
				ID:         KeywordID(c.ID, k.Label),
				CategoryID: c.ID,
				Label:      k.Label,
				Synonyms:   syn,
				Status:     domain.ConceptApproved,
			})
		}
	}
	return categories, keywords
}

// DefaultSeed covers every keyword id the rule projector can emit.
func DefaultSeed() Seed {
	return Seed{Categories: []SeedCategory{
		{ID: CategoryVitals, Label: "Vital Signs", Keywords: []SeedKeyword{
			{Label: "Recorded", Synonyms: []string{"vitals taken", "vital signs documented"}},
			{Label: "Hypoxia", Synonyms: []string{"low oxygen saturation", "desaturation"}},
			{Label: "Hypotension", Synonyms: []string{"low blood pressure"}},
			{Label: "Tachycardia", Synonyms: []string{"elevated heart rate", "rapid pulse"}},
			{Label: "Fever", Synonyms: []string{"febrile", "elevated temperature", "pyrexia"}},
		}},
		{ID: CategorySmoking, Label: "Smoking", Keywords: []SeedKeyword{
			{Label: "History", Synonyms: []string{"tobacco use history"}},
			{Label: "Current", Synonyms: []string{"current smoker", "active tobacco use"}},
			{Label: "Former", Synonyms: []string{"former smoker", "quit smoking"}},
			{Label: "Never", Synonyms: []string{"never smoker", "denies tobacco"}},
			{Label: "Cessation Counseling", Synonyms: []string{"quit counseling", "tobacco cessation"}},
		}},
		{ID: CategoryMentalHealth, Label: "Mental Health", Keywords: []SeedKeyword{
			{Label: "Present", Synonyms: []string{"mental health content"}},
			{Label: "Anxiety", Synonyms: []string{"anxious", "generalized anxiety"}},
			{Label: "Depression", Synonyms: []string{"depressed mood", "major depressive disorder"}},
			{Label: "Substance Use", Synonyms: []string{"substance abuse", "alcohol use disorder"}},
		}},
		{ID: CategorySexualHistory, Label: "Sexual History", Keywords: []SeedKeyword{
			{Label: "Mentioned", Synonyms: []string{"sexually active"}},
			{Label: "Risky Behavior", Synonyms: []string{"high-risk sexual behavior"}},
		}},
		{ID: CategoryReferrals, Label: "Referrals", Keywords: []SeedKeyword{
			{Label: "Present", Synonyms: []string{"referral placed"}},
			{Label: "Specialty", Synonyms: []string{"specialty referral"}},
		}},
		{ID: CategoryResults, Label: "Results", Keywords: []SeedKeyword{
			{Label: "Present", Synonyms: []string{"lab results", "test results"}},
			{Label: "Abnormal", Synonyms: []string{"abnormal finding", "out of range"}},
		}},
		{ID: CategoryAppointments, Label: "Appointments", Keywords: []SeedKeyword{
			{Label: "Scheduling", Synonyms: []string{"appointment scheduled", "visit scheduled"}},
		}},
		{ID: CategoryCommunication, Label: "Communication", Keywords: []SeedKeyword{
			{Label: "Present", Synonyms: []string{"patient communication"}},
			{Label: "Patient Initiated", Synonyms: []string{"patient called", "patient message"}},
			{Label: "Clinic Initiated", Synonyms: []string{"outreach", "clinic called"}},
		}},
	}}
}
