package domain

// ToastType is the lifecycle stage of a notification.
type ToastType string

const (
	ToastLoading ToastType = "loading"
	ToastSuccess ToastType = "success"
	ToastError   ToastType = "error"
)

// Terminal reports whether the toast ends its key's lifecycle.
func (t ToastType) Terminal() bool {
	return t == ToastSuccess || t == ToastError
}

// Toast is a keyed notification. Posting a toast with an existing key
// replaces the previous one.
type Toast struct {
	Key     string    `json:"key"`
	Message string    `json:"message"`
	Type    ToastType `json:"type"`
}

// Toast messages shown to menu administrators.
const (
	MessageSaving            = "Enregistrement en cours..."
	MessageOrderSaved        = "Ordre enregistré !"
	MessageCreating          = "Création en cours..."
	MessageCategoryCreated   = "Catégorie créée !"
	MessageProductCreated    = "Produit créé !"
	MessageDeleting          = "Suppression en cours..."
	MessageCategoriesDeleted = "Catégories supprimées !"
	MessageProductsDeleted   = "Produits supprimés !"
	MessageLoading           = "Chargement du menu..."
	MessageMenuLoaded        = "Menu chargé !"
	MessageFailure           = "Une erreur est survenue"
)
