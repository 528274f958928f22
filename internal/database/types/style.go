package types

// Style is a map style from the tagging service vocabulary.
type Style struct {
	ID   int    `bun:",pk"             json:"id"`
	Name string `bun:",unique,notnull" json:"name"`
}
