package repos

import (
	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

// Catalog bundles every entity repo over one store.
type Catalog struct {
	Tasks      TaskRepo
	Sales      SaleRepo
	Records    RecordRepo
	Items      ItemRepo
	Players    PlayerRepo
	Characters CharacterRepo
	Sites      SiteRepo
	Businesses BusinessRepo
}

func NewCatalog(store kvstore.Store, baseLog *logger.Logger) *Catalog {
	return &Catalog{
		Tasks:      NewTaskRepo(store, baseLog),
		Sales:      NewSaleRepo(store, baseLog),
		Records:    NewRecordRepo(store, baseLog),
		Items:      NewItemRepo(store, baseLog),
		Players:    NewPlayerRepo(store, baseLog),
		Characters: NewCharacterRepo(store, baseLog),
		Sites:      NewSiteRepo(store, baseLog),
		Businesses: NewBusinessRepo(store, baseLog),
	}
}
