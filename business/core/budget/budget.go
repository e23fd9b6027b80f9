// Package budget maintains the fixed set of government budget categories a
// proposal can target.
package budget

import "fmt"

// Category represents one of the fixed budget categories. The Korean label
// is both the wire format and the stored value.
type Category string

// The set of categories proposals are submitted into.
const (
	HealthWelfareEmployment Category = "보건•복지•고용"
	GeneralLocalAdmin       Category = "일반•지방행정"
	Education               Category = "교육"
	Defense                 Category = "국방"
	IndustrySMEEnergy       Category = "산업•중소기업•에너지"
	RnD                     Category = "R&D"
	SOC                     Category = "SOC"
	AgricultureFisheryFood  Category = "농림•수산•식품"
	PublicOrderSafety       Category = "공공질서•안전"
	Environment             Category = "환경"
	CultureSportsTourism    Category = "문화•체육•관광"
	DiplomacyUnification    Category = "외교•통일"
)

// Item carries a category with its description for display to users.
type Item struct {
	Category    Category `json:"category"`
	Description string   `json:"description"`
}

// categories holds the full set in display order.
var categories = []Category{
	HealthWelfareEmployment,
	GeneralLocalAdmin,
	Education,
	Defense,
	IndustrySMEEnergy,
	RnD,
	SOC,
	AgricultureFisheryFood,
	PublicOrderSafety,
	Environment,
	CultureSportsTourism,
	DiplomacyUnification,
}

var descriptions = map[Category]string{
	HealthWelfareEmployment: "국민의 건강과 복지 증진, 일자리 창출을 위한 예산",
	GeneralLocalAdmin:       "정부와 지방자치단체의 운영 및 행정 서비스 제공을 위한 예산",
	Education:               "초중고 및 대학 교육, 평생교육 등 교육 분야 전반에 대한 예산",
	Defense:                 "국가 안보와 군사력 유지를 위한 예산",
	IndustrySMEEnergy:       "산업 발전, 중소기업 지원, 에너지 정책 추진을 위한 예산",
	RnD:                     "과학기술 연구 개발 및 혁신을 위한 예산",
	SOC:                     "도로, 철도, 항만 등 사회간접자본 확충을 위한 예산",
	AgricultureFisheryFood:  "농업, 임업, 수산업 발전 및 식품 안전을 위한 예산",
	PublicOrderSafety:       "경찰, 소방, 재난관리 등 공공 안전을 위한 예산",
	Environment:             "환경 보호 및 기후변화 대응을 위한 예산",
	CultureSportsTourism:    "문화 예술, 체육 진흥, 관광 산업 발전을 위한 예산",
	DiplomacyUnification:    "외교 정책 추진 및 남북 통일 준비를 위한 예산",
}

// Items returns all categories with their descriptions in display order.
func Items() []Item {
	items := make([]Item, len(categories))
	for i, cat := range categories {
		items[i] = Item{
			Category:    cat,
			Description: descriptions[cat],
		}
	}

	return items
}

// Parse converts the provided string into a known Category.
func Parse(value string) (Category, error) {
	cat := Category(value)
	if _, exists := descriptions[cat]; !exists {
		return "", fmt.Errorf("unknown budget category %q", value)
	}

	return cat, nil
}

// String implements the fmt.Stringer interface.
func (c Category) String() string {
	return string(c)
}
