package orchestrator

import (
	"fmt"
	"strings"

	"asistan/internal/postprocess"
)

// DefaultSystemPrompt is the base instruction block of every chat payload.
const DefaultSystemPrompt = "Sen Türkçe konuşan bir yapay zeka asistanısın. Adın yok, sadece yardımcı bir asistansın.\n\n" +
	"Nasıl konuşmalısın:\n" +
	"- Her zaman Türkçe yaz. Hiçbir zaman İngilizce kelime kullanma.\n" +
	"- Kullanıcıya 'sen' diye hitap et, 'siz' deme.\n" +
	"- Kısa ve öz cevaplar ver. Gereksiz uzatma, tekrar yapma.\n" +
	"- Doğal ve rahat bir dil kullan.\n" +
	"- Soru sorulduğunda doğrudan cevap ver, giriş cümlesi ekleme.\n" +
	"- Selama kısa selam ver.\n" +
	"- Önceki mesajları hatırla ve bağlam içinde cevap ver.\n" +
	"- İnternetten gelen verilerdeki sayıları olduğu gibi kullan, değiştirme."

// DefaultImageQuestion is asked when the caller gives no question.
const DefaultImageQuestion = "Bu resimde ne var?"

// Example is one few-shot user/assistant exchange.
type Example struct {
	User      string
	Assistant string
}

// DefaultExamples set the tone: short, informal, Turkish.
var DefaultExamples = []Example{
	{User: "Merhaba", Assistant: "Selam! Nasılsın?"},
	{User: "Bugün biraz yorgunum.", Assistant: "Geçmiş olsun. Biraz dinlenmek iyi gelebilir, istersen kısa bir mola ver."},
	{User: "Python'da bir liste nasıl sıralanır?", Assistant: "sorted(liste) yeni bir sıralı liste döner, liste.sort() ise listeyi yerinde sıralar."},
}

// contextBlock wraps live external data with the instruction to pass its
// numbers through unchanged.
func contextBlock(system, data string) string {
	return system + "\n\n" +
		"--- GÜNCEL BİLGİLER (İNTERNETTEN ALINMIŞTIR) ---\n" +
		strings.TrimSpace(data) + "\n" +
		"--- BİLGİ SONU ---\n\n" +
		"ÖNEMLİ: Yukarıdaki bilgilerdeki sayıları (sıcaklık, kur, fiyat vb.) olduğu gibi kullan. " +
		"Değiştirme, yuvarlama, tahmin yapma. Kaynak belirtme, sadece bilgiyi doğal şekilde aktar."
}

// visionPrompts are the phrasings tried in order until the vision model
// says something. Vision models answer most reliably in English.
func visionPrompts(question string) []string {
	return []string{
		fmt.Sprintf("Look at this image carefully and answer in detail. The user asks (in Turkish): %q", question),
		"Describe everything you see in this image: objects, people, any written text, colors and the setting.",
		"What is in this picture? Answer briefly.",
	}
}

const factsSystem = "Sen bir görsel analiz yardımcısısın. Sana bir görselin İngilizce açıklaması verilecek. " +
	"Açıklamadaki önemli görsel bilgileri Türkçe, kısa maddeler halinde çıkar. Yorum ekleme, uydurma."

func factsPrompt(description string) string {
	return "Görsel açıklaması:\n\n" + strings.TrimSpace(description) + "\n\nÖnemli bilgileri madde madde Türkçe yaz."
}

const composeSystem = "Sen Türkçe konuşan bir asistansın. Kullanıcıya 'sen' diye hitap et. " +
	"Sadece verilen görsel bilgilere dayanarak akıcı ve doğal Türkçe ile cevap ver. " +
	"İngilizce kelime kullanma, sayfa ya da panel numarası uydurma."

func composePrompt(question, facts string) string {
	return "Kullanıcının sorusu: " + question + "\n\nGörseldeki bilgiler:\n" + strings.TrimSpace(facts) +
		"\n\nBu bilgilere dayanarak soruyu kısa ve net şekilde cevapla."
}

// regenerateHints tell the model what was wrong with the previous draft.
var regenerateHints = map[postprocess.Reason]string{
	postprocess.ReasonForeignScript:   "Önceki cevabında Türkçe olmayan karakterler vardı. Sadece Türk alfabesiyle yaz.",
	postprocess.ReasonEnglishLeftover: "Önceki cevabında İngilizce ifadeler vardı. Tamamen Türkçe yaz.",
	postprocess.ReasonPageReference:   "Önceki cevabında sayfa numarası gibi anlamsız referanslar vardı. Bunları kullanma.",
}
