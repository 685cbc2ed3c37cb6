package widget

const (
	TypeCodeLock           = "code-lock"
	TypeQuestionnaire      = "questionnaire"
	TypeReanimation        = "reanimation"
	TypeReanimationCatalog = "reanimation-catalog"
	TypeCipher             = "cipher"
)

// RegisterBuiltins registers every widget shipped with the blog.
func RegisterBuiltins(r *Registry) {
	r.Register(TypeCodeLock, newCodeLock)
	r.Register(TypeQuestionnaire, newQuestionnaire)
	r.Register(TypeReanimation, newReanimation)
	r.Register(TypeReanimationCatalog, newCatalog)
	r.Register(TypeCipher, newCipher)
}
