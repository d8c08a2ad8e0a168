package user

type User struct {
	Id          int
	DisplayName string
	Timezone    string
}
