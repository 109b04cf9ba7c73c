package draft

import (
	"strings"
	"unicode"

	"github.com/samber/lo"
	"github.com/tomakado/containers/set"

	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

const (
	// Тег предметной области, есть в каждом черновике
	DomainTag = "#AWS"
	MaxTags   = 7
)

// Сервисы, которые узнаем в тексте новости. Порядок определяет порядок тегов
var services = []string{
	"Lambda", "S3", "EC2", "DynamoDB", "RDS", "CloudFormation",
	"CloudWatch", "SNS", "SQS", "ECS", "EKS", "Fargate",
	"API Gateway", "Step Functions", "EventBridge", "Kinesis",
	"Redshift", "Athena", "Glue", "SageMaker", "Bedrock",
	"CodePipeline", "CodeBuild", "CodeDeploy", "CloudFront",
	"Route 53", "VPC", "IAM", "KMS", "Secrets Manager",
	"AppSync", "Amplify", "Cognito", "ElastiCache", "Neptune",
}

// Общие темы
var topics = []string{
	"AI", "MachineLearning", "ML", "Serverless", "Container",
	"Kubernetes", "Docker", "DevOps", "Cloud", "Security",
	"Database", "Analytics", "BigData", "IoT", "Edge",
}

// Tags извлекает теги из заголовка и описания. Всегда начинается с DomainTag,
// совпадения ищутся по целым словам без учета регистра.
func Tags(item model.FeedItem) []string {
	words := tokenize(item.Title + " " + item.Summary)

	// Сет слов, чтобы быстро проверять однословные токены
	wordSet := set.New(words...)
	hasWord := func(w string) bool { return wordSet.Contains(w) }
	// Для составных названий вроде "API Gateway" ищем последовательность слов
	joined := " " + strings.Join(words, " ") + " "

	tags := []string{DomainTag}
	for _, token := range append(append([]string{}, services...), topics...) {
		if !containsToken(hasWord, joined, token) {
			continue
		}
		tags = append(tags, "#"+strings.ReplaceAll(token, " ", ""))
	}

	tags = lo.Uniq(tags)
	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}

	return tags
}

func containsToken(hasWord func(string) bool, joined, token string) bool {
	parts := tokenize(token)
	if len(parts) == 1 {
		return hasWord(parts[0])
	}

	return strings.Contains(joined, " "+strings.Join(parts, " ")+" ")
}

// Разбивает текст на слова в нижнем регистре
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
