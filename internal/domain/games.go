package domain

// GameCodes are the ledger status codes a third-party game posts under.
type GameCodes struct {
	Name   string
	Debit  StatusCode
	Credit StatusCode
	Tips   StatusCode
	// TipsDebit is charged to a winner who funds the host tip (Joy only).
	TipsDebit StatusCode
}

// CarGameID is the game id recorded for the car race in aggregate tables.
const CarGameID = 101

// CarGameName labels car race rows in company wallet history.
const CarGameName = "car game"

// BaishunGames maps Baishun game ids to their ledger codes.
var BaishunGames = map[int]GameCodes{
	1010: {Name: "Lottery", Debit: 140, Credit: 141, Tips: 177},
	1016: {Name: "Crash", Debit: 142, Credit: 143, Tips: 178},
	1017: {Name: "Greedy2", Debit: 144, Credit: 145, Tips: 179},
	1022: {Name: "FishingStar", Debit: 146, Credit: 147, Tips: 180},
	1061: {Name: "TeenPattiPro", Debit: 148, Credit: 149, Tips: 181},
	1081: {Name: "RoulettePro", Debit: 150, Credit: 151, Tips: 182},
	1004: {Name: "Slots", Debit: 152, Credit: 153, Tips: 183},
	1034: {Name: "Fishing Star", Debit: 166, Credit: 167, Tips: 184},
	1063: {Name: "GreedyFruit", Debit: 194, Credit: 195, Tips: 196},
	1090: {Name: "FruitLoops", Debit: 197, Credit: 198, Tips: 199},
	1070: {Name: "Luck77", Debit: 203, Credit: 204, Tips: 205},
	1095: {Name: "Hide or Seek", Debit: 206, Credit: 207, Tips: 208},
	1058: {Name: "UEFA Penalty kick", Debit: 209, Credit: 210, Tips: 211},
	1105: {Name: "Magic Card", Debit: 212, Credit: 213, Tips: 214},
	1029: {Name: "Fruit Carnival", Debit: 215, Credit: 216, Tips: 217},
	1053: {Name: "MagicSlot", Debit: 225, Credit: 226, Tips: 227},
	1084: {Name: "DragonTiger2", Debit: 252, Credit: 253, Tips: 254},
	1116: {Name: "LuckyStairs", Debit: 228, Credit: 229, Tips: 230},
	1131: {Name: "ChickenRun", Debit: 258, Credit: 259, Tips: 260},
}

// ShareExemptGames never have room, system or company shares taken.
var ShareExemptGames = map[int]bool{
	1022: true,
	1034: true,
}

// JoyGames maps Joy game ids to their ledger codes.
var JoyGames = map[int]GameCodes{
	16: {Name: "Teen-Patti 2", Debit: 154, Credit: 155, Tips: 170, TipsDebit: 185},
	25: {Name: "Amazing Fishing", Debit: 156, Credit: 157, Tips: 171, TipsDebit: 186},
	1:  {Name: "Slots", Debit: 158, Credit: 159, Tips: 172, TipsDebit: 187},
	2:  {Name: "Fruit Machine", Debit: 160, Credit: 161, Tips: 173, TipsDebit: 188},
	6:  {Name: "Dice2", Debit: 162, Credit: 163, Tips: 174, TipsDebit: 189},
	10: {Name: "Roulette", Debit: 164, Credit: 165, Tips: 175, TipsDebit: 190},
	14: {Name: "Greedy", Debit: 168, Credit: 169, Tips: 176, TipsDebit: 191},
}

// LookupGame returns the codes of a game within an integration's catalog.
func LookupGame(integration Integration, gameID int) (GameCodes, bool) {
	var catalog map[int]GameCodes
	switch integration {
	case IntegrationBaishun:
		catalog = BaishunGames
	case IntegrationJoy:
		catalog = JoyGames
	default:
		return GameCodes{}, false
	}
	g, ok := catalog[gameID]
	return g, ok
}
